package gym

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/brensch/snekgym/game"
)

// Result is one individual's outcome at the end of an epoch.
type Result struct {
	ID          uuid.UUID
	Father      uuid.UUID
	Mother      uuid.UUID
	Fitness     float64
	Probability float64
	Length      int
	Turns       int32
	Status      game.Status
	Seed        int64
}

// Lineage records which parents a child was bred from.
type Lineage struct {
	Child  uuid.UUID
	Father uuid.UUID
	Mother uuid.UUID
}

// GenerationReport describes one generation transition.
type GenerationReport struct {
	RunID           uuid.UUID
	Generation      int
	EpochsRemaining int
	Seed            int64
	Ticks           int
	Degenerate      bool
	Exhausted       bool
	Results         []Result
	Lineage         []Lineage
	// DisposeErrors counts parent policies whose release failed.
	DisposeErrors   int

	Best    float64
	Mean    float64
	Std     float64
	Min     float64
	Longest int

	Duration time.Duration
}

func summarize(r *GenerationReport, fitness []float64) {
	if len(fitness) == 0 {
		return
	}
	r.Best = floats.Max(fitness)
	r.Min = floats.Min(fitness)
	if len(fitness) > 1 {
		r.Mean, r.Std = stat.MeanStdDev(fitness, nil)
	} else {
		r.Mean = fitness[0]
	}
	for _, res := range r.Results {
		if res.Length > r.Longest {
			r.Longest = res.Length
		}
	}
}

// TickEvent carries read-only snapshots after one tick.
type TickEvent struct {
	RunID      uuid.UUID
	Generation int
	Tick       int
	States     []*game.GameState
}
