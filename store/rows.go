// Package store writes training telemetry: per-generation results and
// optional per-tick board snapshots as parquet, plus a generation summary CSV.
// Nothing here is read back by the gym.
package store

import (
	"github.com/google/uuid"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/gym"
)

// GenerationRow is one individual's outcome in one generation.
//
// Father and Mother are empty for the first generation.
type GenerationRow struct {
	RunID           string  `parquet:"run_id,dict"`
	Generation      int32   `parquet:"generation"`
	EpochsRemaining int32   `parquet:"epochs_remaining"`
	GenerationSeed  int64   `parquet:"generation_seed"`
	IndividualID    string  `parquet:"individual_id"`
	FatherID        string  `parquet:"father_id,optional"`
	MotherID        string  `parquet:"mother_id,optional"`
	Fitness         float64 `parquet:"fitness"`
	Probability     float64 `parquet:"probability"`
	Length          int32   `parquet:"length"`
	Turns           int32   `parquet:"turns"`
	Status          string  `parquet:"status,dict"`
	Seed            int64   `parquet:"seed"`
	Degenerate      bool    `parquet:"degenerate"`
}

// TurnRow is a board snapshot for one individual after one tick.
// Direction uses game.Direction values: 0=Up, 1=Down, 2=Left, 3=Right.
type TurnRow struct {
	RunID      string  `parquet:"run_id,dict"`
	Generation int32   `parquet:"generation"`
	Tick       int32   `parquet:"tick"`
	Index      int32   `parquet:"index"`
	Turn       int32   `parquet:"turn"`
	Width      int32   `parquet:"width"`
	Height     int32   `parquet:"height"`
	Status     string  `parquet:"status,dict"`
	Direction  int32   `parquet:"direction"`
	FoodX      int32   `parquet:"food_x"`
	FoodY      int32   `parquet:"food_y"`
	BodyX      []int32 `parquet:"body_x"`
	BodyY      []int32 `parquet:"body_y"`
	Seed       int64   `parquet:"seed"`
}

// GenerationStats is the CSV summary line for one generation.
type GenerationStats struct {
	RunID           string  `csv:"run_id"`
	Generation      int     `csv:"generation"`
	EpochsRemaining int     `csv:"epochs_remaining"`
	Seed            int64   `csv:"seed"`
	Ticks           int     `csv:"ticks"`
	Best            float64 `csv:"best"`
	Mean            float64 `csv:"mean"`
	Std             float64 `csv:"std"`
	Min             float64 `csv:"min"`
	Longest         int     `csv:"longest"`
	Degenerate      bool    `csv:"degenerate"`
	Exhausted       bool    `csv:"exhausted"`
	DisposeErrors   int     `csv:"dispose_errors"`
	DurationMs      float64 `csv:"duration_ms"`
}

func idString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

// GenerationRows flattens a report into one row per individual.
func GenerationRows(r *gym.GenerationReport) []GenerationRow {
	rows := make([]GenerationRow, len(r.Results))
	for i, res := range r.Results {
		rows[i] = GenerationRow{
			RunID:           r.RunID.String(),
			Generation:      int32(r.Generation),
			EpochsRemaining: int32(r.EpochsRemaining),
			GenerationSeed:  r.Seed,
			IndividualID:    res.ID.String(),
			FatherID:        idString(res.Father),
			MotherID:        idString(res.Mother),
			Fitness:         res.Fitness,
			Probability:     res.Probability,
			Length:          int32(res.Length),
			Turns:           res.Turns,
			Status:          res.Status.String(),
			Seed:            res.Seed,
			Degenerate:      r.Degenerate,
		}
	}
	return rows
}

// Stats summarises a report for the CSV.
func Stats(r *gym.GenerationReport) GenerationStats {
	return GenerationStats{
		RunID:           r.RunID.String(),
		Generation:      r.Generation,
		EpochsRemaining: r.EpochsRemaining,
		Seed:            r.Seed,
		Ticks:           r.Ticks,
		Best:            r.Best,
		Mean:            r.Mean,
		Std:             r.Std,
		Min:             r.Min,
		Longest:         r.Longest,
		Degenerate:      r.Degenerate,
		Exhausted:       r.Exhausted,
		DisposeErrors:   r.DisposeErrors,
		DurationMs:      float64(r.Duration.Microseconds()) / 1000,
	}
}

// TurnRows flattens a tick event.
func TurnRows(e gym.TickEvent) []TurnRow {
	rows := make([]TurnRow, len(e.States))
	for i, s := range e.States {
		rows[i] = turnRow(e, i, s)
	}
	return rows
}

func turnRow(e gym.TickEvent, i int, s *game.GameState) TurnRow {
	bx := make([]int32, len(s.Snake))
	by := make([]int32, len(s.Snake))
	for j, p := range s.Snake {
		bx[j], by[j] = p.X, p.Y
	}
	return TurnRow{
		RunID:      e.RunID.String(),
		Generation: int32(e.Generation),
		Tick:       int32(e.Tick),
		Index:      int32(i),
		Turn:       s.Turn,
		Width:      s.Width,
		Height:     s.Height,
		Status:     s.Status.String(),
		Direction:  int32(s.Direction),
		FoodX:      s.Food.X,
		FoodY:      s.Food.Y,
		BodyX:      bx,
		BodyY:      by,
		Seed:       s.Seed,
	}
}
