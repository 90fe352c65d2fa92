// Package rng holds the seedable random sources threaded through the engine
// and the gym. Nothing in this module draws from the global math/rand source:
// every draw goes through a Source so tests can replay exact sequences.
package rng

import (
	"math/rand"
)

// Source is the subset of *rand.Rand the module consumes.
type Source interface {
	// Float64 returns a value in [0,1).
	Float64() float64
	// Int63n returns a value in [0,n). n must be > 0.
	Int63n(n int64) int64
}

// New returns a deterministic source for seed.
func New(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Seed draws an environment seed in [0, width*height).
func Seed(src Source, width, height int32) int64 {
	cells := int64(width) * int64(height)
	if cells <= 0 {
		return 0
	}
	return src.Int63n(cells)
}

// Mix is splitmix64 over seed+offset: a pure function used to derive
// independent streams from one seed.
func Mix(seed int64, offset uint64) uint64 {
	x := uint64(seed) + offset*0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Derive maps (seed, index) to an environment seed in [0, width*height).
// The same inputs always produce the same output.
func Derive(seed int64, index int, width, height int32) int64 {
	cells := uint64(width) * uint64(height)
	if cells == 0 {
		return 0
	}
	return int64(Mix(seed, uint64(index)+1) % cells)
}

// Sequence replays a fixed list of draws, cycling when exhausted.
// It exists so selection can be driven by a known sequence.
type Sequence struct {
	draws []float64
	next  int
}

// NewSequence returns a Sequence over draws. Values should lie in [0,1).
func NewSequence(draws ...float64) *Sequence {
	return &Sequence{draws: append([]float64(nil), draws...)}
}

func (s *Sequence) Float64() float64 {
	if len(s.draws) == 0 {
		return 0
	}
	v := s.draws[s.next%len(s.draws)]
	s.next++
	return v
}

func (s *Sequence) Int63n(n int64) int64 {
	if n <= 0 {
		panic("rng: invalid argument to Int63n")
	}
	v := int64(s.Float64() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Drawn reports how many values have been consumed.
func (s *Sequence) Drawn() int {
	return s.next
}
