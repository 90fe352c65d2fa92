// Package config loads snekgym run configuration from YAML.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brensch/snekgym/gym"
	"github.com/brensch/snekgym/logging"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Board   BoardConfig   `yaml:"board"`
	Gym     GymConfig     `yaml:"gym"`
	Policy  PolicyConfig  `yaml:"policy"`
	Output  OutputConfig  `yaml:"output"`
	Stream  StreamConfig  `yaml:"stream"`
	Logging LoggingConfig `yaml:"logging"`
}

type BoardConfig struct {
	Width  int32  `yaml:"width"`
	Height int32  `yaml:"height"`
	Seed   *int64 `yaml:"seed,omitempty"`
}

type GymConfig struct {
	PopulationSize int     `yaml:"population_size"`
	MutationRate   float64 `yaml:"mutation_rate"`
	Epochs         int     `yaml:"epochs"`
	MaxTurns       int32   `yaml:"max_turns"`
	Workers        int     `yaml:"workers"`
	SharedSeed     bool    `yaml:"shared_seed"`
	RandomSeed     int64   `yaml:"random_seed"`
	Fitness        string  `yaml:"fitness"`
}

type PolicyConfig struct {
	Kind   string     `yaml:"kind"`
	Hidden int        `yaml:"hidden"`
	Sigma  float64    `yaml:"sigma"`
	ONNX   ONNXConfig `yaml:"onnx"`
}

type ONNXConfig struct {
	Models       []string      `yaml:"models"`
	Sessions     int           `yaml:"sessions"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	InputName    string        `yaml:"input_name"`
	OutputName   string        `yaml:"output_name"`
	CUDA         bool          `yaml:"cuda"`
}

type OutputConfig struct {
	ArchiveDir string `yaml:"archive_dir"`
	Turns      bool   `yaml:"turns"`
	StatsCSV   bool   `yaml:"stats_csv"`
}

type StreamConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	PolicyNeural = "neural"
	PolicyONNX   = "onnx"
	PolicyGreedy = "greedy"

	FitnessLength      = "length"
	FitnessLengthTurns = "length_turns"
)

// Default returns the embedded defaults.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

// Load overlays the YAML file at path on the embedded defaults. Keys missing
// from the file keep their default. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges. Errors wrap gym.ErrInvalidConfiguration.
func (c *Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{gym.ErrInvalidConfiguration}, args...)...)
	}
	switch {
	case c.Board.Width <= 0 || c.Board.Height <= 0:
		return bad("board must be positive, got %dx%d", c.Board.Width, c.Board.Height)
	case c.Gym.PopulationSize <= 0:
		return bad("gym.population_size must be positive, got %d", c.Gym.PopulationSize)
	case c.Gym.Epochs < 0:
		return bad("gym.epochs must be >= 0, got %d", c.Gym.Epochs)
	case c.Gym.MutationRate < 0 || c.Gym.MutationRate > 1:
		return bad("gym.mutation_rate must be in [0,1], got %v", c.Gym.MutationRate)
	case c.Gym.MaxTurns < 0:
		return bad("gym.max_turns must be >= 0, got %d", c.Gym.MaxTurns)
	}

	switch c.Gym.Fitness {
	case FitnessLength, FitnessLengthTurns:
	default:
		return bad("unknown gym.fitness %q", c.Gym.Fitness)
	}

	switch c.Policy.Kind {
	case PolicyNeural, PolicyGreedy:
	case PolicyONNX:
		if len(c.Policy.ONNX.Models) == 0 {
			return bad("policy.kind onnx needs policy.onnx.models")
		}
	default:
		return bad("unknown policy.kind %q", c.Policy.Kind)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return bad("%v", err)
	}
	switch c.Logging.Format {
	case "", logging.FormatText, logging.FormatJSON, logging.FormatPretty:
	default:
		return bad("unknown logging.format %q", c.Logging.Format)
	}
	return nil
}

// FitnessFunc maps Gym.Fitness to a gym.FitnessFunc.
func (c *Config) FitnessFunc() gym.FitnessFunc {
	if c.Gym.Fitness == FitnessLengthTurns {
		return gym.LengthAndTurns
	}
	return gym.SnakeLength
}

// GymConfig fills the scalar fields of a gym.Config. The caller supplies the
// policy family, logger and callbacks.
func (c *Config) GymConfig() gym.Config {
	return gym.Config{
		Width:          c.Board.Width,
		Height:         c.Board.Height,
		Seed:           c.Board.Seed,
		PopulationSize: c.Gym.PopulationSize,
		MutationRate:   c.Gym.MutationRate,
		Epochs:         c.Gym.Epochs,
		MaxTurns:       c.Gym.MaxTurns,
		Workers:        c.Gym.Workers,
		SharedSeed:     c.Gym.SharedSeed,
		RandomSeed:     c.Gym.RandomSeed,
		Fitness:        c.FitnessFunc(),
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// WriteYAML snapshots c to path, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := c.YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
