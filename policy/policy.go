// Package policy defines the decision capability the gym evolves.
//
// A Policy maps an observation to an action. Everything else a policy owns
// (weights, model sessions, buffers) stays behind a Family, which creates,
// combines, perturbs and releases handles. The gym never looks inside one.
package policy

import (
	"errors"
	"sync/atomic"

	"github.com/brensch/snekgym/game"
)

var (
	// ErrForeignPolicy is returned when a Family is handed a policy it did not create.
	ErrForeignPolicy = errors.New("policy belongs to another family")
	// ErrDisposed is returned when a released policy is used again.
	ErrDisposed = errors.New("policy already disposed")
)

// Context is caller supplied input to Decide, for example live keyboard
// state. Policies that need nothing ignore it.
type Context any

// Policy decides one action per observation. Decide must not mutate obs.
type Policy interface {
	Decide(obs *game.GameState, ctx Context) game.Action
}

// Family owns the lifecycle of one kind of policy.
//
// Mutate consumes its argument: callers must use the returned policy and
// must not dispose the one they passed in. Crossover always returns a new
// handle, leaving both parents live.
type Family interface {
	Name() string
	New(obs *game.GameState) (Policy, error)
	Crossover(father, mother Policy) (Policy, error)
	Mutate(p Policy, rate float64) (Policy, error)
	Dispose(p Policy) error
	// Live reports handles created and not yet disposed.
	Live() int
}

// Tracker counts live handles for a Family.
type Tracker struct {
	live atomic.Int64
}

func (t *Tracker) Acquire() { t.live.Add(1) }

func (t *Tracker) Live() int { return int(t.live.Load()) }

// Lifetime is embedded in concrete policies to catch double disposal.
type Lifetime struct {
	disposed atomic.Bool
}

// Release marks the handle disposed and decrements t. A second call fails
// with ErrDisposed and leaves t untouched.
func (l *Lifetime) Release(t *Tracker) error {
	if !l.disposed.CompareAndSwap(false, true) {
		return ErrDisposed
	}
	t.live.Add(-1)
	return nil
}

func (l *Lifetime) Disposed() bool { return l.disposed.Load() }

// Func adapts a plain function to Policy.
type Func func(obs *game.GameState, ctx Context) game.Action

func (f Func) Decide(obs *game.GameState, ctx Context) game.Action { return f(obs, ctx) }
