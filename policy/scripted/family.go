package scripted

import (
	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
)

// Family wraps a stateless policy so it can run in the gym. Every handle
// behaves the same, so crossover and mutation only manage handles.
type Family struct {
	name    string
	base    policy.Policy
	tracker policy.Tracker
}

func NewFamily(name string, base policy.Policy) *Family {
	return &Family{name: name, base: base}
}

func GreedyFamily() *Family { return NewFamily("greedy", Greedy{}) }

func KeyboardFamily() *Family { return NewFamily("keyboard", Keyboard{}) }

type handle struct {
	policy.Lifetime
	family *Family
}

func (h *handle) Decide(obs *game.GameState, ctx policy.Context) game.Action {
	return h.family.base.Decide(obs, ctx)
}

func (f *Family) Name() string { return f.name }

func (f *Family) Live() int { return f.tracker.Live() }

func (f *Family) New(_ *game.GameState) (policy.Policy, error) {
	return f.wrap(), nil
}

func (f *Family) Crossover(father, mother policy.Policy) (policy.Policy, error) {
	if _, err := f.own(father); err != nil {
		return nil, err
	}
	if _, err := f.own(mother); err != nil {
		return nil, err
	}
	return f.wrap(), nil
}

func (f *Family) Mutate(p policy.Policy, _ float64) (policy.Policy, error) {
	return f.own(p)
}

func (f *Family) Dispose(p policy.Policy) error {
	h, ok := p.(*handle)
	if !ok || h.family != f {
		return policy.ErrForeignPolicy
	}
	return h.Release(&f.tracker)
}

func (f *Family) wrap() *handle {
	f.tracker.Acquire()
	return &handle{family: f}
}

func (f *Family) own(p policy.Policy) (*handle, error) {
	h, ok := p.(*handle)
	if !ok || h.family != f {
		return nil, policy.ErrForeignPolicy
	}
	if h.Disposed() {
		return nil, policy.ErrDisposed
	}
	return h, nil
}
