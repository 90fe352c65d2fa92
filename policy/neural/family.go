package neural

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/policy/encode"
)

const (
	DefaultHidden = 16
	DefaultSigma  = 0.1
)

// Family creates and evolves network policies. Its random source is guarded,
// so Crossover and Mutate may be called from several goroutines.
type Family struct {
	hidden int
	sigma  float64

	mu  sync.Mutex
	rnd *rand.Rand

	tracker policy.Tracker
}

type Option func(*Family)

// WithHidden sets the hidden layer width.
func WithHidden(n int) Option {
	return func(f *Family) {
		if n > 0 {
			f.hidden = n
		}
	}
}

// WithSigma sets the standard deviation of mutation noise.
func WithSigma(s float64) Option {
	return func(f *Family) {
		if s > 0 {
			f.sigma = s
		}
	}
}

// WithRand sets the source used for initialisation, crossover and mutation.
func WithRand(r *rand.Rand) Option {
	return func(f *Family) {
		if r != nil {
			f.rnd = r
		}
	}
}

func NewFamily(opts ...Option) *Family {
	f := &Family{
		hidden: DefaultHidden,
		sigma:  DefaultSigma,
		rnd:    rand.New(rand.NewSource(1)),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Policy is a network-backed policy handle.
type Policy struct {
	policy.Lifetime
	family *Family
	net    *Network
}

func (p *Policy) Network() *Network { return p.net }

// Decide keeps the current heading when the board does not match the
// network's input size.
func (p *Policy) Decide(obs *game.GameState, _ policy.Context) game.Action {
	if encode.Size(obs.Width, obs.Height) != p.net.Inputs() {
		return obs.Direction
	}
	enc := encode.Encode(obs, nil)
	in := make([]float64, len(enc))
	for i, v := range enc {
		in[i] = float64(v)
	}
	return Best(p.net.Forward(in))
}

func (f *Family) Name() string { return "neural" }

func (f *Family) Live() int { return f.tracker.Live() }

// New sizes a fresh random network for obs's board.
func (f *Family) New(obs *game.GameState) (policy.Policy, error) {
	if obs == nil || obs.Width <= 0 || obs.Height <= 0 {
		return nil, fmt.Errorf("neural: observation needs a positive board")
	}
	f.mu.Lock()
	net := NewNetwork(f.rnd, encode.Size(obs.Width, obs.Height), f.hidden)
	f.mu.Unlock()
	return f.wrap(net), nil
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
	if !sameShape(a.net, b.net) {
		return nil, fmt.Errorf("neural: crossover of %dx%d with %dx%d networks",
			a.net.Inputs(), a.net.Hidden(), b.net.Inputs(), b.net.Hidden())
	}
	f.mu.Lock()
	child := crossover(f.rnd, a.net, b.net)
	f.mu.Unlock()
	return f.wrap(child), nil
}

// Mutate perturbs p in place and returns it.
func (f *Family) Mutate(p policy.Policy, rate float64) (policy.Policy, error) {
	np, err := f.own(p)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	mutate(f.rnd, np.net, rate, f.sigma)
	f.mu.Unlock()
	return np, nil
}

func (f *Family) Dispose(p policy.Policy) error {
	np, ok := p.(*Policy)
	if !ok || np.family != f {
		return policy.ErrForeignPolicy
	}
	return np.Release(&f.tracker)
}

func (f *Family) wrap(net *Network) *Policy {
	f.tracker.Acquire()
	return &Policy{family: f, net: net}
}

func (f *Family) own(p policy.Policy) (*Policy, error) {
	np, ok := p.(*Policy)
	if !ok || np.family != f {
		return nil, policy.ErrForeignPolicy
	}
	if np.Disposed() {
		return nil, policy.ErrDisposed
	}
	return np, nil
}
