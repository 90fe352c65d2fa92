// Package game defines the core state types for a single-snake grid environment.
//
// A GameState is treated as a value by the engine: rules.Update never mutates
// its input and returns a fresh state, so states can be handed to renderers or
// policies without copying.
package game

import "fmt"

// Point is a board coordinate. (0,0) is the top-left cell; y grows downwards.
type Point struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Add returns p translated by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// Direction is a heading on the grid.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

// Action is a steering command. It shares the Direction domain.
type Action = Direction

// Directions lists every direction in encoding order.
var Directions = [...]Direction{Up, Down, Left, Right}

var directionNames = [...]string{"up", "down", "left", "right"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Valid reports whether d is one of the four headings.
func (d Direction) Valid() bool {
	return d <= Right
}

// Opposite returns the 180 degree reversal of d.
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	default:
		return Left
	}
}

// Delta is the unit vector for d.
func (d Direction) Delta() Point {
	switch d {
	case Up:
		return Point{X: 0, Y: -1}
	case Down:
		return Point{X: 0, Y: 1}
	case Left:
		return Point{X: -1, Y: 0}
	default:
		return Point{X: 1, Y: 0}
	}
}

// ParseDirection accepts the lower-case names produced by String.
func ParseDirection(s string) (Direction, error) {
	for i, name := range directionNames {
		if name == s {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Status is the lifecycle of one environment.
type Status uint8

const (
	Running Status = iota
	GameOver
)

func (s Status) String() string {
	if s == GameOver {
		return "gameOver"
	}
	return "running"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "running":
		*s = Running
	case "gameOver":
		*s = GameOver
	default:
		return fmt.Errorf("unknown status %q", string(b))
	}
	return nil
}

// GameState is the complete state of one environment.
// Snake is head-first and never empty for states built by rules.Create.
type GameState struct {
	Seed      int64     `json:"seed"`
	Turn      int32     `json:"turn"`
	Status    Status    `json:"status"`
	Width     int32     `json:"width"`
	Height    int32     `json:"height"`
	Snake     []Point   `json:"snake"`
	Direction Direction `json:"direction"`
	Food      Point     `json:"food"`
}

// Clone performs a deep copy of the game state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	out := *s
	if len(s.Snake) > 0 {
		out.Snake = make([]Point, len(s.Snake))
		copy(out.Snake, s.Snake)
	}
	return &out
}

// Head returns the first snake segment.
func (s *GameState) Head() Point {
	return s.Snake[0]
}

// InBounds reports whether p lies on the board.
func (s *GameState) InBounds(p Point) bool {
	return p.X >= 0 && p.X < s.Width && p.Y >= 0 && p.Y < s.Height
}

// Occupied reports whether any snake segment covers p.
func (s *GameState) Occupied(p Point) bool {
	for _, b := range s.Snake {
		if b == p {
			return true
		}
	}
	return false
}

// Over reports whether the state is terminal.
func (s *GameState) Over() bool {
	return s.Status == GameOver
}

// Equal compares every field of two states.
func (s *GameState) Equal(o *GameState) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Seed != o.Seed || s.Turn != o.Turn || s.Status != o.Status ||
		s.Width != o.Width || s.Height != o.Height ||
		s.Direction != o.Direction || s.Food != o.Food ||
		len(s.Snake) != len(o.Snake) {
		return false
	}
	for i := range s.Snake {
		if s.Snake[i] != o.Snake[i] {
			return false
		}
	}
	return true
}
