package game

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDirection_Opposite(t *testing.T) {
	pairs := map[Direction]Direction{Up: Down, Down: Up, Left: Right, Right: Left}
	for d, want := range pairs {
		if got := d.Opposite(); got != want {
			t.Fatalf("%s.Opposite()=%s want=%s", d, got, want)
		}
		if got := d.Opposite().Opposite(); got != d {
			t.Fatalf("double opposite of %s = %s", d, got)
		}
	}
}

func TestDirection_DeltaIsUnitVector(t *testing.T) {
	want := map[Direction]Point{
		Up:    {X: 0, Y: -1},
		Down:  {X: 0, Y: 1},
		Left:  {X: -1, Y: 0},
		Right: {X: 1, Y: 0},
	}
	for d, p := range want {
		if got := d.Delta(); got != p {
			t.Fatalf("%s.Delta()=%v want=%v", d, got, p)
		}
		sum := d.Delta().Add(d.Opposite().Delta())
		if sum != (Point{}) {
			t.Fatalf("%s + opposite = %v want origin", d, sum)
		}
	}
}

func TestParseDirection(t *testing.T) {
	for _, d := range Directions {
		got, err := ParseDirection(d.String())
		if err != nil {
			t.Fatalf("ParseDirection(%q): %v", d.String(), err)
		}
		if got != d {
			t.Fatalf("ParseDirection(%q)=%s", d.String(), got)
		}
	}
	if _, err := ParseDirection("north"); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestClone_IsDeep(t *testing.T) {
	s := &GameState{
		Width:  5,
		Height: 5,
		Snake:  []Point{{X: 2, Y: 2}, {X: 1, Y: 2}},
		Food:   Point{X: 4, Y: 4},
	}
	c := s.Clone()
	if !c.Equal(s) {
		t.Fatalf("clone differs from original")
	}
	c.Snake[0] = Point{X: 0, Y: 0}
	if s.Snake[0] != (Point{X: 2, Y: 2}) {
		t.Fatalf("mutating clone changed original: %v", s.Snake[0])
	}
	if c.Equal(s) {
		t.Fatalf("Equal should notice the changed segment")
	}
}

func TestGameState_JSONUsesNames(t *testing.T) {
	s := &GameState{Width: 3, Height: 3, Snake: []Point{{X: 1, Y: 1}}, Direction: Left, Status: GameOver}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"direction":"left"`) || !strings.Contains(string(b), `"status":"gameOver"`) {
		t.Fatalf("unexpected json: %s", b)
	}
	var back GameState
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(s) {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestString_DrawsBoard(t *testing.T) {
	s := &GameState{
		Width:  4,
		Height: 3,
		Snake:  []Point{{X: 1, Y: 1}, {X: 0, Y: 1}},
		Food:   Point{X: 3, Y: 0},
	}
	out := s.String()
	t.Logf("\n%s", out)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines=%d want=4", len(lines))
	}
	if lines[1] != "...F" || lines[2] != "oH.." || lines[3] != "...." {
		t.Fatalf("unexpected board:\n%s", out)
	}
}
