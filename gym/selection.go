package gym

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/brensch/snekgym/rng"
)

// ErrDegenerateFitness reports that the fitness total was zero and a uniform
// distribution was used instead. It never stops a gym.
var ErrDegenerateFitness = errors.New("degenerate fitness")

// FitnessFunc scores a frozen individual. Negative and NaN scores count as 0.
type FitnessFunc func(ind Individual) float64

// SnakeLength scores an individual by its final snake length.
func SnakeLength(ind Individual) float64 {
	if ind.State == nil {
		return 0
	}
	return float64(len(ind.State.Snake))
}

// LengthAndTurns adds a small survival bonus to SnakeLength so that, among
// snakes of equal length, the longer-lived one is preferred.
func LengthAndTurns(ind Individual) float64 {
	if ind.State == nil {
		return 0
	}
	return float64(len(ind.State.Snake)) + float64(ind.State.Turn)/1000
}

// Normalize returns fitness scaled to sum to one. Negative and NaN entries
// weigh nothing. If any entry is +Inf the mass is split evenly between the
// +Inf entries. When the total is zero it returns the uniform distribution
// together with ErrDegenerateFitness.
func Normalize(fitness []float64) ([]float64, error) {
	p := make([]float64, len(fitness))
	if len(p) == 0 {
		return p, nil
	}

	infinite := 0
	for _, f := range fitness {
		if math.IsInf(f, 1) {
			infinite++
		}
	}
	if infinite > 0 {
		for i, f := range fitness {
			if math.IsInf(f, 1) {
				p[i] = 1 / float64(infinite)
			}
		}
		return p, nil
	}

	for i, f := range fitness {
		if f > 0 {
			p[i] = f
		}
	}

	sum := floats.Sum(p)
	if math.IsInf(sum, 1) {
		// Finite weights whose sum overflows: rescale by the largest first.
		floats.Scale(1/floats.Max(p), p)
		sum = floats.Sum(p)
	}
	if sum <= 0 || math.IsNaN(sum) {
		for i := range p {
			p[i] = 1 / float64(len(p))
		}
		return p, ErrDegenerateFitness
	}
	floats.Scale(1/sum, p)
	return p, nil
}

// PickOne is a roulette-wheel draw: r in [0,1) from src is reduced by each
// p[i] in order and the index where it drops below zero is chosen. Rounding
// that leaves r unspent falls back to the last index with positive weight.
func PickOne(p []float64, src rng.Source) int {
	r := src.Float64()
	last := len(p) - 1
	for i, pi := range p {
		if pi > 0 {
			last = i
		}
		r -= pi
		if r < 0 {
			return i
		}
	}
	return last
}
