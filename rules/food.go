package rules

import (
	"github.com/brensch/snekgym/game"
)

// placeFood finds the next food cell after the snake ate the food at from.
//
// Candidate k uses seed+k:
//
//	x = (from.x + (seed+k) mod width) mod width
//	y = (from.y + floor((seed+k) / height)) mod height
//
// At most width*height candidates are tried. Because those offsets need not
// cover every cell on non-square boards, a row-major scan from the last
// candidate follows, so a free cell is found whenever one exists.
//
// It returns the cell, the seed that produced it, and false only when the
// snake occupies the whole board.
func placeFood(state *game.GameState, from game.Point) (game.Point, int64, bool) {
	w, h := int64(state.Width), int64(state.Height)
	cells := w * h
	if cells <= 0 {
		return game.Point{}, state.Seed, false
	}

	occupied := make(map[game.Point]struct{}, len(state.Snake))
	for _, p := range state.Snake {
		occupied[p] = struct{}{}
	}
	if int64(len(occupied)) >= cells {
		return from, state.Seed, false
	}

	var last game.Point
	for k := int64(0); k < cells; k++ {
		s := state.Seed + k
		last = game.Point{
			X: int32(mod(int64(from.X)+mod(s, w), w)),
			Y: int32(mod(int64(from.Y)+floorDiv(s, h), h)),
		}
		if _, taken := occupied[last]; !taken {
			return last, s, true
		}
	}

	start := int64(last.Y)*w + int64(last.X)
	for k := int64(1); k <= cells; k++ {
		idx := (start + k) % cells
		p := game.Point{X: int32(idx % w), Y: int32(idx / w)}
		if _, taken := occupied[p]; !taken {
			return p, state.Seed + cells, true
		}
	}
	return from, state.Seed, false
}

// mod is the Euclidean remainder, always in [0,m).
func mod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

// floorDiv rounds towards negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
