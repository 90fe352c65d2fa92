// format.go - ASCII board dump used by tests and `snekgym play --trace`.

package game

import (
	"fmt"
	"strings"
)

// String renders the board top-to-bottom: H head, o body, F food, . empty.
// Segments outside the board (a head that left it on the final move) are skipped.
func (s *GameState) String() string {
	if s == nil {
		return "<nil state>"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Turn=%d Size=%dx%d Seed=%d Dir=%s Status=%s Len=%d\n",
		s.Turn, s.Width, s.Height, s.Seed, s.Direction, s.Status, len(s.Snake))

	w, h := int(s.Width), int(s.Height)
	if w <= 0 || h <= 0 || w > 80 || h > 80 {
		return sb.String()
	}

	grid := make([][]byte, h)
	for y := range grid {
		grid[y] = []byte(strings.Repeat(".", w))
	}
	if s.InBounds(s.Food) {
		grid[s.Food.Y][s.Food.X] = 'F'
	}
	for i := len(s.Snake) - 1; i >= 0; i-- {
		p := s.Snake[i]
		if !s.InBounds(p) {
			continue
		}
		if i == 0 {
			grid[p.Y][p.X] = 'H'
		} else {
			grid[p.Y][p.X] = 'o'
		}
	}
	for _, row := range grid {
		sb.Write(row)
		sb.WriteByte('\n')
	}
	return sb.String()
}
