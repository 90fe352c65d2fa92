// Package scripted has hand-written policies: a greedy food seeker used as a
// baseline and a keyboard policy for playing yourself.
package scripted

import (
	"sync/atomic"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/policy"
	"github.com/brensch/snekgym/rules"
)

// Greedy moves towards the food along any move that survives the next step.
// Among equally close moves the earlier one in game.Directions wins. With no
// safe move it keeps its heading.
type Greedy struct{}

func (Greedy) Decide(obs *game.GameState, _ policy.Context) game.Action {
	moves := rules.LegalMoves(obs)
	if len(moves) == 0 {
		return obs.Direction
	}
	head := obs.Head()
	bestMove, bestDist := moves[0], int32(-1)
	for _, m := range moves {
		d := manhattan(head.Add(m.Delta()), obs.Food)
		if bestDist < 0 || d < bestDist {
			bestMove, bestDist = m, d
		}
	}
	return bestMove
}

func manhattan(a, b game.Point) int32 {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Keys is the context a Keyboard reads.
type Keys interface {
	// Pressed returns the most recent steering key, if any.
	Pressed() (game.Direction, bool)
}

// KeyState is a Keys fed from an input goroutine.
type KeyState struct {
	last atomic.Int32
}

func NewKeyState() *KeyState {
	k := &KeyState{}
	k.last.Store(-1)
	return k
}

func (k *KeyState) Press(d game.Direction) {
	if d.Valid() {
		k.last.Store(int32(d))
	}
}

func (k *KeyState) Pressed() (game.Direction, bool) {
	v := k.last.Load()
	if v < 0 {
		return 0, false
	}
	return game.Direction(v), true
}

// Keyboard steers with the last key in the Keys context and otherwise keeps
// going straight.
type Keyboard struct{}

func (Keyboard) Decide(obs *game.GameState, ctx policy.Context) game.Action {
	if keys, ok := ctx.(Keys); ok {
		if d, ok := keys.Pressed(); ok {
			return d
		}
	}
	return obs.Direction
}
