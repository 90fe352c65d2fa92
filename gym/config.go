package gym

import (
	"fmt"
	"log/slog"

	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/rng"
	"github.com/brensch/snekgym/rules"
)

// ErrInvalidConfiguration is rules.ErrInvalidConfiguration.
var ErrInvalidConfiguration = rules.ErrInvalidConfiguration

type Config struct {
	Width  int32
	Height int32
	// Seed fixes the first generation's environment seed. Nil draws one
	// from Rand.
	Seed           *int64
	PopulationSize int
	MutationRate   float64
	Epochs         int
	// MaxTurns freezes an individual once its turn reaches it. 0 disables it.
	MaxTurns int32
	// Workers bounds parallel evaluation within a tick. <= 1 steps in order.
	Workers int
	// SharedSeed gives every environment in a generation the same seed.
	// Otherwise each gets rng.Derive(seed, index).
	SharedSeed bool

	Family  policy.Family
	Fitness FitnessFunc
	// Rand drives selection and seed draws. Nil uses rng.New(RandomSeed).
	Rand       rng.Source
	RandomSeed int64
	Context    policy.Context
	Logger     *slog.Logger

	OnTick       func(TickEvent)
	OnGeneration func(*GenerationReport)
}

func (c Config) validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: board must be positive, got %dx%d", ErrInvalidConfiguration, c.Width, c.Height)
	case c.PopulationSize <= 0:
		return fmt.Errorf("%w: population size must be positive, got %d", ErrInvalidConfiguration, c.PopulationSize)
	case c.Epochs < 0:
		return fmt.Errorf("%w: epochs must be >= 0, got %d", ErrInvalidConfiguration, c.Epochs)
	case c.MutationRate < 0 || c.MutationRate > 1:
		return fmt.Errorf("%w: mutation rate must be in [0,1], got %v", ErrInvalidConfiguration, c.MutationRate)
	case c.MaxTurns < 0:
		return fmt.Errorf("%w: max turns must be >= 0, got %d", ErrInvalidConfiguration, c.MaxTurns)
	case c.Family == nil:
		return fmt.Errorf("%w: no policy family", ErrInvalidConfiguration)
	}
	return nil
}

func (c *Config) defaults() {
	if c.Fitness == nil {
		c.Fitness = SnakeLength
	}
	if c.Rand == nil {
		c.Rand = rng.New(c.RandomSeed)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
