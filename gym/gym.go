// Package gym evolves a population of policies against the snake engine.
//
// A Gym holds one generation at a time. Tick steps every unfrozen individual
// once; when the whole generation is frozen the next Tick breeds a new one by
// roulette-wheel selection, crossover and mutation, then releases the parents.
// With Epochs = E the gym plays E+1 generations and then reports ErrExhausted.
package gym

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/rng"
	"github.com/brensch/snekgym/rules"
)

// ErrExhausted is returned once no further generations will be played.
var ErrExhausted = errors.New("gym exhausted")

type Phase int

const (
	// Seeded: a fresh generation that has not been stepped.
	Seeded Phase = iota
	Running
	// EpochComplete: every individual is frozen; the next Tick breeds.
	EpochComplete
	Exhausted
)

func (p Phase) String() string {
	switch p {
	case Seeded:
		return "seeded"
	case Running:
		return "running"
	case EpochComplete:
		return "epochComplete"
	case Exhausted:
		return "exhausted"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Gym is not safe for concurrent Tick calls. Population and the other
// accessors may be called from any goroutine.
type Gym struct {
	cfg   Config
	runID uuid.UUID
	log   *slog.Logger

	mu         sync.RWMutex
	population []Individual
	phase      Phase
	epochs     int
	generation int
	ticks      int
	seed       int64
	started    time.Time
	closed     bool
}

// New validates cfg and seeds the first generation.
func New(cfg Config) (*Gym, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.defaults()

	g := &Gym{
		cfg:    cfg,
		runID:  uuid.New(),
		epochs: cfg.Epochs,
	}
	g.log = cfg.Logger.With("run", g.runID.String())

	seed := rng.Seed(cfg.Rand, cfg.Width, cfg.Height)
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	pop, err := g.seedPopulation(seed, nil)
	if err != nil {
		return nil, err
	}
	g.population = pop
	g.seed = seed
	g.started = time.Now()

	g.log.Info("Gym seeded",
		"population", cfg.PopulationSize,
		"epochs", cfg.Epochs,
		"board", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"policy", cfg.Family.Name(),
		"seed", seed,
	)
	return g, nil
}

// seedPopulation builds fresh environments for seed. children supplies the
// policies; nil asks the family for new ones.
func (g *Gym) seedPopulation(seed int64, children []Individual) ([]Individual, error) {
	n := g.cfg.PopulationSize
	pop := make([]Individual, n)
	for i := 0; i < n; i++ {
		envSeed := seed
		if !g.cfg.SharedSeed {
			envSeed = rng.Derive(seed, i, g.cfg.Width, g.cfg.Height)
		}
		state, err := rules.Create(g.cfg.Width, g.cfg.Height, envSeed)
		if err != nil {
			return nil, err
		}

		if children != nil {
			pop[i] = children[i]
			pop[i].State = state
			continue
		}

		p, err := g.cfg.Family.New(state)
		if err != nil {
			var errs []error
			for _, built := range pop[:i] {
				errs = append(errs, g.cfg.Family.Dispose(built.Policy))
			}
			return nil, errors.Join(append([]error{fmt.Errorf("create policy %d: %w", i, err)}, errs...)...)
		}
		pop[i] = Individual{ID: uuid.New(), State: state, Policy: p}
	}
	return pop, nil
}

// Tick advances the gym by one step: either one engine step for every
// unfrozen individual or, when the epoch is complete, one generation
// transition.
func (g *Gym) Tick(ctx context.Context) error {
	g.mu.RLock()
	phase, pop := g.phase, g.population
	g.mu.RUnlock()

	if phase == Exhausted {
		return ErrExhausted
	}
	if phase == EpochComplete || IsEpochFinished(pop, g.cfg.MaxTurns) {
		return g.transition(ctx)
	}

	next, err := g.stepAll(ctx, pop)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.population = next
	g.ticks++
	g.phase = Running
	if IsEpochFinished(next, g.cfg.MaxTurns) {
		g.phase = EpochComplete
	}
	tick, generation := g.ticks, g.generation
	g.mu.Unlock()

	g.log.Debug("Tick", "generation", generation, "tick", tick)

	if g.cfg.OnTick != nil {
		states := make([]*game.GameState, len(next))
		for i, ind := range next {
			states[i] = ind.State.Clone()
		}
		g.cfg.OnTick(TickEvent{RunID: g.runID, Generation: generation, Tick: tick, States: states})
	}
	return nil
}

// stepAll evaluates every individual once into a new slice. The current
// population is left untouched until the caller swaps it.
func (g *Gym) stepAll(ctx context.Context, pop []Individual) ([]Individual, error) {
	next := make([]Individual, len(pop))
	if g.cfg.Workers <= 1 {
		for i, ind := range pop {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			next[i] = StepIndividual(ind, g.cfg.MaxTurns, g.cfg.Context)
		}
		return next, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i := range pop {
		i := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			next[i] = StepIndividual(pop[i], g.cfg.MaxTurns, g.cfg.Context)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

// Next performs a generation transition now, scoring individuals on their
// current states without stepping them further.
func (g *Gym) Next(ctx context.Context) error {
	g.mu.RLock()
	phase := g.phase
	g.mu.RUnlock()
	if phase == Exhausted {
		return ErrExhausted
	}
	return g.transition(ctx)
}

// RunEpoch ticks until the current generation has been replaced.
func (g *Gym) RunEpoch(ctx context.Context) error {
	start := g.Generation()
	for g.Generation() == start {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run plays every remaining generation. It returns nil once the gym is
// exhausted.
func (g *Gym) Run(ctx context.Context) error {
	for {
		err := g.RunEpoch(ctx)
		if errors.Is(err, ErrExhausted) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (g *Gym) transition(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	begin := time.Now()

	g.mu.RLock()
	pop := g.population
	generation, ticks, seed := g.generation, g.ticks, g.seed
	g.mu.RUnlock()

	fitness := make([]float64, len(pop))
	for i, ind := range pop {
		f := g.cfg.Fitness(ind)
		if f < 0 || math.IsNaN(f) {
			f = 0
		}
		fitness[i] = f
	}

	probs, err := Normalize(fitness)
	degenerate := errors.Is(err, ErrDegenerateFitness)
	if degenerate {
		g.log.Warn("Total fitness is zero, selecting uniformly", "generation", generation)
	}

	report := &GenerationReport{
		RunID:      g.runID,
		Generation: generation,
		Seed:       seed,
		Ticks:      ticks,
		Degenerate: degenerate,
		Results:    make([]Result, len(pop)),
	}
	for i, ind := range pop {
		report.Results[i] = Result{
			ID:          ind.ID,
			Father:      ind.Father,
			Mother:      ind.Mother,
			Fitness:     fitness[i],
			Probability: probs[i],
			Length:      len(ind.State.Snake),
			Turns:       ind.State.Turn,
			Status:      ind.State.Status,
			Seed:        ind.State.Seed,
		}
	}
	summarize(report, fitness)

	remaining := g.EpochsRemaining() - 1
	if remaining < 0 {
		g.mu.Lock()
		g.phase = Exhausted
		g.epochs = 0
		g.mu.Unlock()

		report.Exhausted = true
		report.Duration = time.Since(begin)
		g.log.Info("Gym exhausted",
			"generations", generation+1,
			"best", report.Best,
			"mean", report.Mean,
			"elapsed", time.Since(g.started).Round(time.Millisecond),
		)
		g.emit(report)
		return ErrExhausted
	}

	children, lineage, err := g.breed(probs, pop)
	if err != nil {
		return err
	}

	// Parents are released only after every child exists. A failed release
	// leaks the handle but does not stop training.
	disposeErrs := 0
	for _, ind := range pop {
		if err := g.cfg.Family.Dispose(ind.Policy); err != nil {
			disposeErrs++
			g.log.Warn("Dispose failed", "generation", generation, "individual", ind.ID.String(), "error", err)
		}
	}

	nextSeed := rng.Seed(g.cfg.Rand, g.cfg.Width, g.cfg.Height)
	next, err := g.seedPopulation(nextSeed, children)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.population = next
	g.epochs = remaining
	g.generation++
	g.ticks = 0
	g.seed = nextSeed
	g.phase = Seeded
	g.mu.Unlock()

	report.EpochsRemaining = remaining
	report.Lineage = lineage
	report.DisposeErrors = disposeErrs
	report.Duration = time.Since(begin)

	g.log.Info("Generation complete",
		"generation", generation,
		"epochs_remaining", remaining,
		"ticks", ticks,
		"best", report.Best,
		"mean", report.Mean,
		"longest", report.Longest,
		"next_seed", nextSeed,
		"duration", report.Duration.Round(time.Microsecond),
	)
	g.emit(report)
	return nil
}

// breed builds one child per slot. On failure every child built so far is
// disposed and the parents are left as they were.
func (g *Gym) breed(probs []float64, pop []Individual) ([]Individual, []Lineage, error) {
	fam := g.cfg.Family
	children := make([]Individual, 0, len(pop))
	lineage := make([]Lineage, 0, len(pop))

	fail := func(err error) ([]Individual, []Lineage, error) {
		errs := []error{err}
		for _, c := range children {
			errs = append(errs, fam.Dispose(c.Policy))
		}
		return nil, nil, errors.Join(errs...)
	}

	for range pop {
		father := pop[PickOne(probs, g.cfg.Rand)]
		mother := pop[PickOne(probs, g.cfg.Rand)]

		child, err := fam.Crossover(father.Policy, mother.Policy)
		if err != nil {
			return fail(fmt.Errorf("crossover: %w", err))
		}
		mutated, err := fam.Mutate(child, g.cfg.MutationRate)
		if err != nil {
			return fail(errors.Join(fmt.Errorf("mutate: %w", err), fam.Dispose(child)))
		}

		id := uuid.New()
		children = append(children, Individual{ID: id, Father: father.ID, Mother: mother.ID, Policy: mutated})
		lineage = append(lineage, Lineage{Child: id, Father: father.ID, Mother: mother.ID})
	}
	return children, lineage, nil
}

func (g *Gym) emit(r *GenerationReport) {
	if g.cfg.OnGeneration != nil {
		g.cfg.OnGeneration(r)
	}
}

// Close releases the policies of the current population. It is safe to call
// more than once; afterwards the gym is exhausted.
func (g *Gym) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.phase = Exhausted

	var errs []error
	for _, ind := range g.population {
		if err := g.cfg.Family.Dispose(ind.Policy); err != nil {
			errs = append(errs, fmt.Errorf("dispose %s: %w", ind.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Population returns a copy of the current generation. States are shared and
// must be treated as read-only.
func (g *Gym) Population() []Individual {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Individual, len(g.population))
	copy(out, g.population)
	return out
}

func (g *Gym) RunID() uuid.UUID { return g.runID }

func (g *Gym) Phase() Phase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.phase
}

func (g *Gym) Generation() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.generation
}

func (g *Gym) EpochsRemaining() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.epochs
}

func (g *Gym) Ticks() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ticks
}

// Seed is the environment seed of the current generation.
func (g *Gym) Seed() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.seed
}
