// Package onnxpolicy serves policies from frozen ONNX models.
//
// The model takes a [batch, encode.Size(width, height)] float32 input and
// returns [batch, 4] scores in up, down, left, right order. Weights are not
// trainable here: crossover picks one parent's model and mutation leaves the
// handle as it is, so evolution selects among the loaded models.
package onnxpolicy

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/policy/encode"
)

// Outputs is the score width of the model's output.
const Outputs = len(game.Directions)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

type Config struct {
	Models       []string
	Width        int32
	Height       int32
	Sessions     int
	BatchSize    int
	BatchTimeout time.Duration
	InputName    string
	OutputName   string
	CUDA         bool
	Rand         *rand.Rand
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Sessions <= 0 {
		c.Sessions = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.InputName == "" {
		c.InputName = "input"
	}
	if c.OutputName == "" {
		c.OutputName = "policy"
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(1))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type Family struct {
	cfg    Config
	models []*model
	pool   *encode.Pool
	next   atomic.Uint64

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error

	tracker policy.Tracker
}

// NewFamily loads every model in cfg.Models.
func NewFamily(cfg Config) (*Family, error) {
	cfg.defaults()
	if len(cfg.Models) == 0 {
		return nil, errors.New("onnxpolicy: no model paths")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("onnxpolicy: board must be positive, got %dx%d", cfg.Width, cfg.Height)
	}
	if err := initRuntime(); err != nil {
		return nil, err
	}

	f := &Family{cfg: cfg, pool: encode.NewPool(cfg.Width, cfg.Height)}
	for _, path := range cfg.Models {
		m, err := loadModel(cfg, path, f.pool.Size())
		if err != nil {
			for _, loaded := range f.models {
				_ = loaded.close()
			}
			return nil, err
		}
		f.models = append(f.models, m)
	}
	cfg.Logger.Info("Loaded onnx models", "models", len(f.models), "sessions", cfg.Sessions, "batch_size", cfg.BatchSize)
	return f, nil
}

// Policy is a reference to one loaded model.
type Policy struct {
	policy.Lifetime
	family *Family
	model  *model
}

func (p *Policy) Model() string { return p.model.path }

// Decide keeps the current heading when inference fails or the board does not
// match the family's size.
func (p *Policy) Decide(obs *game.GameState, _ policy.Context) game.Action {
	f := p.family
	if obs.Width != f.cfg.Width || obs.Height != f.cfg.Height {
		return obs.Direction
	}
	buf := f.pool.Get(obs)
	// The batcher copies the input into its batch before answering.
	scores, err := p.model.predict(*buf)
	f.pool.Put(buf)
	if err != nil {
		f.cfg.Logger.Warn("onnx inference failed", "model", p.model.path, "error", err)
		return obs.Direction
	}
	return best(scores)
}

func best(scores []float32) game.Direction {
	idx := 0
	for i := 1; i < len(scores) && i < Outputs; i++ {
		if scores[i] > scores[idx] {
			idx = i
		}
	}
	return game.Directions[idx]
}

func (f *Family) Name() string { return "onnx" }

func (f *Family) Live() int { return f.tracker.Live() }

// New hands out models round-robin.
func (f *Family) New(_ *game.GameState) (policy.Policy, error) {
	idx := int(f.next.Add(1)-1) % len(f.models)
	return f.wrap(f.models[idx]), nil
}

func (f *Family) Crossover(father, mother policy.Policy) (policy.Policy, error) {
	a, err := f.own(father)
	if err != nil {
		return nil, err
	}
	b, err := f.own(mother)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	pick := a.model
	if f.cfg.Rand.Intn(2) == 1 {
		pick = b.model
	}
	f.mu.Unlock()
	return f.wrap(pick), nil
}

// Mutate returns p unchanged: the weights are frozen.
func (f *Family) Mutate(p policy.Policy, _ float64) (policy.Policy, error) {
	return f.own(p)
}

func (f *Family) Dispose(p policy.Policy) error {
	op, ok := p.(*Policy)
	if !ok || op.family != f {
		return policy.ErrForeignPolicy
	}
	if err := op.Release(&f.tracker); err != nil {
		return err
	}
	return op.model.release()
}

// Stats sums batcher throughput over every model.
func (f *Family) Stats() Stats {
	var st Stats
	for _, m := range f.models {
		ms := m.stats()
		st.Batches += ms.Batches
		st.Items += ms.Items
		if ms.LastBatchSize > st.LastBatchSize {
			st.LastBatchSize = ms.LastBatchSize
		}
	}
	if st.Batches > 0 {
		st.AvgBatchSize = float64(st.Items) / float64(st.Batches)
	}
	return st
}

// Close releases the family's hold on its models. Sessions still referenced by
// live policies are destroyed when those are disposed.
func (f *Family) Close() error {
	f.closeOnce.Do(func() {
		var errs []error
		for _, m := range f.models {
			errs = append(errs, m.close())
		}
		f.closeErr = errors.Join(errs...)
	})
	return f.closeErr
}

func (f *Family) wrap(m *model) *Policy {
	m.retain()
	f.tracker.Acquire()
	return &Policy{family: f, model: m}
}

func (f *Family) own(p policy.Policy) (*Policy, error) {
	op, ok := p.(*Policy)
	if !ok || op.family != f {
		return nil, policy.ErrForeignPolicy
	}
	if op.Disposed() {
		return nil, policy.ErrDisposed
	}
	return op, nil
}
