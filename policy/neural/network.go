// Package neural provides a feed-forward network policy family.
//
// Each policy owns one single-hidden-layer network. The input is the
// encode vector for the observation; the four outputs score up, down, left
// and right and the highest one wins.
package neural

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/brensch/snekgym/game"
)

// Outputs is one score per direction, in game.Directions order.
const Outputs = len(game.Directions)

// Network is input -> tanh hidden -> linear outputs.
type Network struct {
	W1 *mat.Dense    // hidden x inputs
	B1 *mat.VecDense // hidden
	W2 *mat.Dense    // outputs x hidden
	B2 *mat.VecDense // outputs
}

// NewNetwork returns a He-initialised network: weights drawn from
// N(0, 2/fanIn), biases zero.
func NewNetwork(rnd *rand.Rand, inputs, hidden int) *Network {
	n := &Network{
		W1: mat.NewDense(hidden, inputs, nil),
		B1: mat.NewVecDense(hidden, nil),
		W2: mat.NewDense(Outputs, hidden, nil),
		B2: mat.NewVecDense(Outputs, nil),
	}
	scale1 := math.Sqrt(2.0 / float64(inputs))
	scale2 := math.Sqrt(2.0 / float64(hidden))

	w1 := n.W1.RawMatrix().Data
	for i := range w1 {
		w1[i] = rnd.NormFloat64() * scale1
	}
	w2 := n.W2.RawMatrix().Data
	for i := range w2 {
		w2[i] = rnd.NormFloat64() * scale2
	}
	return n
}

func (n *Network) Inputs() int {
	_, c := n.W1.Dims()
	return c
}

func (n *Network) Hidden() int {
	r, _ := n.W1.Dims()
	return r
}

// Forward returns the raw output scores for in. len(in) must equal Inputs.
func (n *Network) Forward(in []float64) []float64 {
	x := mat.NewVecDense(len(in), in)

	h := mat.NewVecDense(n.Hidden(), nil)
	h.MulVec(n.W1, x)
	h.AddVec(h, n.B1)
	hd := h.RawVector().Data
	for i := range hd {
		hd[i] = math.Tanh(hd[i])
	}

	out := mat.NewVecDense(Outputs, nil)
	out.MulVec(n.W2, h)
	out.AddVec(out, n.B2)
	return out.RawVector().Data
}

// Best maps output scores to a direction. Ties go to the earlier direction.
func Best(scores []float64) game.Direction {
	return game.Directions[floats.MaxIdx(scores)]
}

// Clone deep-copies the network.
func (n *Network) Clone() *Network {
	c := &Network{
		W1: mat.DenseCopyOf(n.W1),
		B1: mat.VecDenseCopyOf(n.B1),
		W2: mat.DenseCopyOf(n.W2),
		B2: mat.VecDenseCopyOf(n.B2),
	}
	return c
}

// params returns the backing slices of every weight and bias, in a fixed order.
func (n *Network) params() [][]float64 {
	return [][]float64{
		n.W1.RawMatrix().Data,
		n.B1.RawVector().Data,
		n.W2.RawMatrix().Data,
		n.B2.RawVector().Data,
	}
}

// sameShape reports whether a and b can be crossed.
func sameShape(a, b *Network) bool {
	return a.Inputs() == b.Inputs() && a.Hidden() == b.Hidden()
}

// crossover picks every parameter from either parent with equal probability.
func crossover(rnd *rand.Rand, father, mother *Network) *Network {
	child := father.Clone()
	cp, mp := child.params(), mother.params()
	for i := range cp {
		for j := range cp[i] {
			if rnd.Intn(2) == 1 {
				cp[i][j] = mp[i][j]
			}
		}
	}
	return child
}

// mutate adds N(0, sigma) noise to each parameter with probability rate.
// It returns how many parameters changed.
func mutate(rnd *rand.Rand, n *Network, rate, sigma float64) int {
	if rate <= 0 {
		return 0
	}
	changed := 0
	for _, p := range n.params() {
		for j := range p {
			if rnd.Float64() < rate {
				p[j] += rnd.NormFloat64() * sigma
				changed++
			}
		}
	}
	return changed
}
