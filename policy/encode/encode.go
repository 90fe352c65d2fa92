// Package encode flattens a GameState into the float vector fed to
// model-backed policies.
package encode

import (
	"sync"

	"github.com/brensch/snekgym/game"
)

const (
	// Planes is the number of per-cell planes.
	Planes = 4
	// DirectionFeatures is the width of the heading one-hot.
	DirectionFeatures = 4
)

// Plane layout, each Width*Height long, row-major:
//
//	0: head (1 on the head cell)
//	1: body (1 on every snake cell, head included)
//	2: age (head = 1, decreasing to 1/len at the tail)
//	3: food
//
// followed by the heading one-hot in the order right, left, up, down.
const (
	PlaneHead = iota
	PlaneBody
	PlaneAge
	PlaneFood
)

var headingOrder = [DirectionFeatures]game.Direction{game.Right, game.Left, game.Up, game.Down}

// Size is the encoded length for a width x height board.
func Size(width, height int32) int {
	return Planes*int(width)*int(height) + DirectionFeatures
}

// Encode writes obs into dst and returns it. dst is grown when too short and
// cleared before writing.
func Encode(obs *game.GameState, dst []float32) []float32 {
	w, h := int(obs.Width), int(obs.Height)
	n := Size(obs.Width, obs.Height)
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	clear(dst)

	cells := w * h
	set := func(plane int, p game.Point, v float32) {
		x, y := int(p.X), int(p.Y)
		if x < 0 || x >= w || y < 0 || y >= h {
			return
		}
		dst[plane*cells+y*w+x] = v
	}

	l := len(obs.Snake)
	denom := float32(l)
	// Walk tail to head so the head wins if a finished state overlaps itself.
	for i := l - 1; i >= 0; i-- {
		p := obs.Snake[i]
		set(PlaneBody, p, 1)
		set(PlaneAge, p, float32(l-i)/denom)
	}
	if l > 0 {
		set(PlaneHead, obs.Snake[0], 1)
	}
	set(PlaneFood, obs.Food, 1)

	base := Planes * cells
	for i, d := range headingOrder {
		if obs.Direction == d {
			dst[base+i] = 1
		}
	}
	return dst
}

// Pool hands out encode buffers for one board size.
type Pool struct {
	size int
	pool sync.Pool
}

func NewPool(width, height int32) *Pool {
	size := Size(width, height)
	p := &Pool{size: size}
	p.pool.New = func() interface{} {
		b := make([]float32, size)
		return &b
	}
	return p
}

// Size is the buffer length this pool serves.
func (p *Pool) Size() int { return p.size }

// Get returns a buffer holding the encoding of obs. Return it with Put.
func (p *Pool) Get(obs *game.GameState) *[]float32 {
	buf := p.pool.Get().(*[]float32)
	*buf = Encode(obs, *buf)
	return buf
}

func (p *Pool) Put(b *[]float32) {
	if b == nil || cap(*b) < p.size {
		return
	}
	p.pool.Put(b)
}
