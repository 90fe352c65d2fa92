// Package rules implements the single-snake transition function.
//
// Create builds a fresh environment and Update advances it by exactly one
// step. Both are deterministic: the same (width, height, seed, actions) always
// yield the same sequence of states.
package rules

import (
	"errors"
	"fmt"

	"github.com/brensch/snekgym/game"
	"github.com/brensch/snekgym/rng"
)

// ErrInvalidConfiguration is returned for non-positive board dimensions.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Create returns the initial state: a one-cell snake in the centre heading
// right, with food derived from seed.
func Create(width, height int32, seed int64) (*game.GameState, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: board must be positive, got %dx%d", ErrInvalidConfiguration, width, height)
	}

	state := &game.GameState{
		Seed:      seed,
		Status:    game.Running,
		Width:     width,
		Height:    height,
		Snake:     []game.Point{{X: width / 2, Y: height / 2}},
		Direction: game.Right,
	}

	w, h := int64(width), int64(height)
	state.Food = game.Point{
		X: int32(mod(seed, w)),
		Y: int32(mod(floorDiv(seed, h), h)),
	}
	if state.Occupied(state.Food) {
		food, used, ok := placeFood(state, state.Food)
		if !ok {
			// 1x1 board: the snake already fills it.
			state.Status = game.GameOver
			return state, nil
		}
		state.Food = food
		state.Seed = used
	}
	return state, nil
}

// CreateRandom is Create with the seed drawn from src in [0, width*height).
func CreateRandom(width, height int32, src rng.Source) (*game.GameState, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: board must be positive, got %dx%d", ErrInvalidConfiguration, width, height)
	}
	return Create(width, height, rng.Seed(src, width, height))
}

// CorrectAction ignores a request to reverse into the snake's own neck and
// maps unknown actions to the current heading.
func CorrectAction(action game.Action, current game.Direction) game.Direction {
	if !action.Valid() || action == current.Opposite() {
		return current
	}
	return action
}

// Update applies action and returns the next state. A state that is already
// over is returned unchanged (same pointer). The input is never mutated.
func Update(state *game.GameState, action game.Action) *game.GameState {
	if state == nil || state.Status == game.GameOver {
		return state
	}

	dir := CorrectAction(action, state.Direction)
	head := state.Head().Add(dir.Delta())
	ate := head == state.Food

	keep := len(state.Snake)
	if !ate {
		keep--
	}
	body := make([]game.Point, 0, keep+1)
	body = append(body, head)
	body = append(body, state.Snake[:keep]...)

	next := &game.GameState{
		Seed:      state.Seed,
		Turn:      state.Turn + 1,
		Status:    game.Running,
		Width:     state.Width,
		Height:    state.Height,
		Snake:     body,
		Direction: dir,
		Food:      state.Food,
	}

	if !next.InBounds(head) || hitsBody(body) {
		next.Status = game.GameOver
		return next
	}

	if ate {
		food, used, ok := placeFood(next, state.Food)
		if !ok {
			// Board is full: the snake has won.
			next.Status = game.GameOver
			return next
		}
		next.Food = food
		next.Seed = used
	}

	return next
}

// Continue is Update with the action omitted: the snake keeps its heading.
func Continue(state *game.GameState) *game.GameState {
	if state == nil {
		return nil
	}
	return Update(state, state.Direction)
}

// LegalMoves returns the headings that keep the snake alive for one more step,
// in game.Directions order. The reversal is never listed.
func LegalMoves(state *game.GameState) []game.Direction {
	if state == nil || state.Status == game.GameOver || len(state.Snake) == 0 {
		return nil
	}

	moves := make([]game.Direction, 0, 3)
	for _, d := range game.Directions {
		if d == state.Direction.Opposite() {
			// Update would turn this into going straight.
			continue
		}
		if isSafe(state, state.Head().Add(d.Delta())) {
			moves = append(moves, d)
		}
	}
	return moves
}

func isSafe(state *game.GameState, p game.Point) bool {
	// 1. Bounds
	if !state.InBounds(p) {
		return false
	}

	// 2. Body. The tail vacates its cell unless the move eats.
	body := state.Snake
	if p != state.Food && len(body) > 0 {
		body = body[:len(body)-1]
	}
	for _, b := range body {
		if b == p {
			return false
		}
	}
	return true
}

// IsTerminal reports whether the state is over.
func IsTerminal(state *game.GameState) bool {
	return state == nil || state.Status == game.GameOver
}

func hitsBody(body []game.Point) bool {
	head := body[0]
	for _, p := range body[1:] {
		if p == head {
			return true
		}
	}
	return false
}
