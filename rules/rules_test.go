package rules

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/brensch/snekgym/game"
)

func logUpdate(t *testing.T, name string, before *game.GameState, action game.Action, after *game.GameState) {
	t.Helper()
	t.Logf("=== %s ===\nBefore:\n%sAction: %s\nAfter:\n%s", name, before, action, after)
}

func TestCreate_CentredSnakeHeadingRight(t *testing.T) {
	state, err := Create(5, 5, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(state.Snake) != 1 || state.Snake[0] != (game.Point{X: 2, Y: 2}) {
		t.Fatalf("snake=%v want=[(2,2)]", state.Snake)
	}
	if state.Direction != game.Right {
		t.Fatalf("direction=%s want=right", state.Direction)
	}
	if state.Turn != 0 || state.Status != game.Running {
		t.Fatalf("turn=%d status=%s want 0/running", state.Turn, state.Status)
	}
	if state.Food != (game.Point{X: 0, Y: 0}) {
		t.Fatalf("food=%v want=(0,0)", state.Food)
	}

	after := Update(state, game.Right)
	logUpdate(t, "first move right", state, game.Right, after)
	if len(after.Snake) != 1 || after.Snake[0] != (game.Point{X: 3, Y: 2}) {
		t.Fatalf("snake=%v want=[(3,2)]", after.Snake)
	}
	if after.Turn != 1 {
		t.Fatalf("turn=%d want=1", after.Turn)
	}
	if state.Snake[0] != (game.Point{X: 2, Y: 2}) || state.Turn != 0 {
		t.Fatalf("Update mutated its input: %+v", state)
	}
}

func TestCreate_FoodFromSeed(t *testing.T) {
	cases := []struct {
		w, h int32
		seed int64
		want game.Point
	}{
		{5, 5, 7, game.Point{X: 2, Y: 1}},
		{5, 5, 24, game.Point{X: 4, Y: 4}},
		{6, 4, 10, game.Point{X: 4, Y: 2}},
		{5, 5, -3, game.Point{X: 2, Y: 4}},
	}
	for _, c := range cases {
		state, err := Create(c.w, c.h, c.seed)
		if err != nil {
			t.Fatalf("Create(%d,%d,%d): %v", c.w, c.h, c.seed, err)
		}
		if state.Food != c.want {
			t.Fatalf("Create(%d,%d,%d) food=%v want=%v", c.w, c.h, c.seed, state.Food, c.want)
		}
	}
}

func TestCreate_FoodOnSnakeIsRerolled(t *testing.T) {
	// seed 12 on 5x5 maps to (2,2), the centre.
	state, err := Create(5, 5, 12)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if state.Occupied(state.Food) {
		t.Fatalf("food %v placed on snake %v", state.Food, state.Snake)
	}
	if !state.InBounds(state.Food) {
		t.Fatalf("food %v off board", state.Food)
	}
}

func TestCreate_InvalidConfiguration(t *testing.T) {
	for _, dims := range [][2]int32{{0, 5}, {5, 0}, {-1, 3}} {
		if _, err := Create(dims[0], dims[1], 0); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("Create(%d,%d) err=%v want ErrInvalidConfiguration", dims[0], dims[1], err)
		}
	}
	if _, err := CreateRandom(0, 0, rand.New(rand.NewSource(1))); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("CreateRandom err=%v want ErrInvalidConfiguration", err)
	}
}

func TestCreateRandom_SeedWithinBoard(t *testing.T) {
	src := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		state, err := CreateRandom(4, 6, src)
		if err != nil {
			t.Fatalf("CreateRandom: %v", err)
		}
		if state.Seed < 0 || state.Seed >= 24 {
			t.Fatalf("seed=%d outside [0,24)", state.Seed)
		}
	}
}

func TestUpdate_ReversalIgnored(t *testing.T) {
	state, _ := Create(5, 5, 0)
	after := Update(state, game.Left)
	logUpdate(t, "reverse request", state, game.Left, after)
	if after.Direction != game.Right {
		t.Fatalf("direction=%s want=right", after.Direction)
	}
	straight := Update(state, game.Right)
	if !after.Equal(straight) {
		t.Fatalf("reversal produced a different state:\n%s\nvs\n%s", after, straight)
	}
}

func TestUpdate_OmittedActionContinues(t *testing.T) {
	state, _ := Create(7, 7, 3)
	state = Update(state, game.Down)
	if got, want := Continue(state), Update(state, game.Down); !got.Equal(want) {
		t.Fatalf("Continue differs from moving along the heading")
	}
}

func TestUpdate_WallIsTerminalAndIdempotent(t *testing.T) {
	before := &game.GameState{
		Seed:      0,
		Width:     5,
		Height:    5,
		Snake:     []game.Point{{X: 4, Y: 2}},
		Direction: game.Right,
		Food:      game.Point{X: 0, Y: 0},
	}
	after := Update(before, game.Right)
	logUpdate(t, "into wall", before, game.Right, after)
	if after.Status != game.GameOver {
		t.Fatalf("status=%s want=gameOver", after.Status)
	}
	if after.Turn != 1 {
		t.Fatalf("turn=%d want=1 (the fatal move still counts)", after.Turn)
	}

	for _, a := range game.Directions {
		again := Update(after, a)
		if again != after {
			t.Fatalf("update after game over returned a new value for %s", a)
		}
		if !again.Equal(after) {
			t.Fatalf("update after game over changed state")
		}
	}
}

func TestUpdate_SelfCollision(t *testing.T) {
	before := &game.GameState{
		Width:  6,
		Height: 6,
		Snake: []game.Point{
			{X: 2, Y: 2}, {X: 3, Y: 2}, {X: 3, Y: 3}, {X: 2, Y: 3}, {X: 1, Y: 3},
		},
		Direction: game.Left,
		Food:      game.Point{X: 5, Y: 5},
	}
	after := Update(before, game.Down)
	logUpdate(t, "into own body", before, game.Down, after)
	if after.Status != game.GameOver {
		t.Fatalf("status=%s want=gameOver", after.Status)
	}
}

func TestUpdate_MovingIntoVacatedTailIsSafe(t *testing.T) {
	before := &game.GameState{
		Width:     5,
		Height:    5,
		Snake:     []game.Point{{X: 2, Y: 2}, {X: 3, Y: 2}, {X: 3, Y: 3}, {X: 2, Y: 3}},
		Direction: game.Left,
		Food:      game.Point{X: 0, Y: 0},
	}
	after := Update(before, game.Down)
	logUpdate(t, "chase tail", before, game.Down, after)
	if after.Status != game.Running {
		t.Fatalf("status=%s want=running", after.Status)
	}
}

func TestUpdate_EatGrowsAndReplacesFood(t *testing.T) {
	before := &game.GameState{
		Seed:      7,
		Width:     5,
		Height:    5,
		Snake:     []game.Point{{X: 1, Y: 0}},
		Direction: game.Left,
		Food:      game.Point{X: 0, Y: 0},
	}
	after := Update(before, game.Left)
	logUpdate(t, "eat", before, game.Left, after)

	want := []game.Point{{X: 0, Y: 0}, {X: 1, Y: 0}}
	if len(after.Snake) != len(want) {
		t.Fatalf("snake len=%d want=%d", len(after.Snake), len(want))
	}
	for i := range want {
		if after.Snake[i] != want[i] {
			t.Fatalf("snake[%d]=%v want=%v", i, after.Snake[i], want[i])
		}
	}
	// (0 + 7 mod 5) mod 5, (0 + floor(7/5)) mod 5
	if after.Food != (game.Point{X: 2, Y: 1}) {
		t.Fatalf("food=%v want=(2,1)", after.Food)
	}
	if after.Seed != 7 {
		t.Fatalf("seed=%d want=7", after.Seed)
	}
}

func TestUpdate_FoodRetryIncrementsSeed(t *testing.T) {
	// seed 0 lands on the new head, seed 1 on the kept tail, seed 2 is free.
	before := &game.GameState{
		Seed:      0,
		Width:     5,
		Height:    5,
		Snake:     []game.Point{{X: 1, Y: 0}},
		Direction: game.Left,
		Food:      game.Point{X: 0, Y: 0},
	}
	after := Update(before, game.Left)
	logUpdate(t, "eat with retries", before, game.Left, after)
	if after.Food != (game.Point{X: 2, Y: 0}) {
		t.Fatalf("food=%v want=(2,0)", after.Food)
	}
	if after.Seed != 2 {
		t.Fatalf("seed=%d want=2", after.Seed)
	}
}

func TestUpdate_FullBoardEndsGame(t *testing.T) {
	before := &game.GameState{
		Width:     2,
		Height:    1,
		Snake:     []game.Point{{X: 1, Y: 0}},
		Direction: game.Left,
		Food:      game.Point{X: 0, Y: 0},
	}
	after := Update(before, game.Left)
	logUpdate(t, "fill board", before, game.Left, after)
	if after.Status != game.GameOver {
		t.Fatalf("status=%s want=gameOver", after.Status)
	}
	if len(after.Snake) != 2 {
		t.Fatalf("snake len=%d want=2", len(after.Snake))
	}

	tiny, err := Create(1, 1, 0)
	if err != nil {
		t.Fatalf("Create(1,1): %v", err)
	}
	if tiny.Status != game.GameOver {
		t.Fatalf("1x1 board status=%s want=gameOver", tiny.Status)
	}
}

func TestUpdate_Deterministic(t *testing.T) {
	actions := make([]game.Action, 300)
	r := rand.New(rand.NewSource(99))
	for i := range actions {
		actions[i] = game.Directions[r.Intn(4)]
	}

	run := func() []*game.GameState {
		s, _ := Create(9, 7, 31)
		out := []*game.GameState{s}
		for _, a := range actions {
			s = Update(s, a)
			out = append(out, s)
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if !a[i].Equal(b[i]) {
			t.Fatalf("runs diverged at step %d:\n%s\nvs\n%s", i, a[i], b[i])
		}
	}
}

// Random walks that prefer legal moves, checking invariants on every running state.
func TestUpdate_InvariantsHoldOnRandomWalks(t *testing.T) {
	boards := [][2]int32{{5, 5}, {8, 3}, {3, 7}, {10, 10}}
	for _, dims := range boards {
		for seed := int64(0); seed < 20; seed++ {
			r := rand.New(rand.NewSource(seed))
			s, err := Create(dims[0], dims[1], seed)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			for step := 0; step < 400 && s.Status == game.Running; step++ {
				checkRunningInvariants(t, s)

				var a game.Action
				if legal := LegalMoves(s); len(legal) > 0 && r.Intn(10) > 0 {
					a = legal[r.Intn(len(legal))]
				} else {
					a = game.Directions[r.Intn(4)]
				}

				reversed := Update(s, s.Direction.Opposite())
				if !reversed.Equal(Update(s, s.Direction)) {
					t.Fatalf("reversal not ignored on\n%s", s)
				}

				next := Update(s, a)
				if next.Turn != s.Turn+1 {
					t.Fatalf("turn %d -> %d", s.Turn, next.Turn)
				}
				s = next
			}
		}
	}
}

func checkRunningInvariants(t *testing.T, s *game.GameState) {
	t.Helper()
	seen := make(map[game.Point]bool, len(s.Snake))
	for _, p := range s.Snake {
		if seen[p] {
			t.Fatalf("snake overlaps itself at %v\n%s", p, s)
		}
		if !s.InBounds(p) {
			t.Fatalf("running snake off board at %v\n%s", p, s)
		}
		seen[p] = true
	}
	if seen[s.Food] {
		t.Fatalf("food %v on snake\n%s", s.Food, s)
	}
	if !s.InBounds(s.Food) {
		t.Fatalf("food %v off board", s.Food)
	}
}

func TestLegalMoves(t *testing.T) {
	s := &game.GameState{
		Width:     5,
		Height:    5,
		Snake:     []game.Point{{X: 0, Y: 0}},
		Direction: game.Up,
		Food:      game.Point{X: 4, Y: 4},
	}
	moves := LegalMoves(s)
	if len(moves) != 1 || moves[0] != game.Right {
		t.Fatalf("moves=%v want=[right]", moves)
	}

	s.Status = game.GameOver
	if got := LegalMoves(s); len(got) != 0 {
		t.Fatalf("moves on finished game=%v", got)
	}
}

func TestPlaceFood_CoversNonSquareBoards(t *testing.T) {
	// Only (2,1) is free on a 3x2 board.
	s := &game.GameState{
		Seed:   4,
		Width:  3,
		Height: 2,
		Snake: []game.Point{
			{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1},
		},
	}
	food, _, ok := placeFood(s, game.Point{X: 0, Y: 0})
	if !ok {
		t.Fatalf("placeFood reported a full board")
	}
	if food != (game.Point{X: 2, Y: 1}) {
		t.Fatalf("food=%v want=(2,1)", food)
	}
}
