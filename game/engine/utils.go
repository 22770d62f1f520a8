package engine

import (
	"fmt"
	"strings"
)

// CountWilds counts the active wild tiles in a grid matrix
func CountWilds(grid [][]Tile) int {
	count := 0
	for _, row := range grid {
		for _, t := range row {
			if t.IsWild() {
				count++
			}
		}
	}
	return count
}

// CountActive counts the active tiles in a grid matrix
func CountActive(grid [][]Tile) int {
	count := 0
	for _, row := range grid {
		for _, t := range row {
			if t.Active() {
				count++
			}
		}
	}
	return count
}

// TileSymbol returns a short label for a tile: "." for locked, "W3" for a wild showing 3,
// "4" or "4x2" for a plain tile with stack depth
func TileSymbol(t Tile) string {
	switch {
	case t.Locked:
		return "."
	case t.IsWild():
		return fmt.Sprintf("W%d", t.Value)
	case t.StackDepth > 1:
		return fmt.Sprintf("%dx%d", t.Value, t.StackDepth)
	default:
		return fmt.Sprintf("%d", t.Value)
	}
}

// RenderGrid draws a state as a fixed-width text table with column and row headers
func RenderGrid(st *State) string {
	var b strings.Builder
	b.WriteString("    ")
	for x := 0; x < st.Cols; x++ {
		fmt.Fprintf(&b, "%-4d", x)
	}
	b.WriteString("\n")
	for y, row := range st.Grid {
		fmt.Fprintf(&b, "%-4d", y)
		for _, t := range row {
			fmt.Fprintf(&b, "%-4s", TileSymbol(t))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// MeterBar renders the wild meter display ratio as a bar of the given width
func MeterBar(ratio float64, width int) string {
	filled := int(ratio * float64(width))
	filled = max(0, min(width, filled))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// Summary returns a one-line HUD summary of a state
func Summary(st *State) string {
	s := fmt.Sprintf("level %d | score %d | moves %d | combo x%d | wild %s %.2f",
		st.Level, st.Score, st.Moves, st.Combo, MeterBar(st.WildRatio, 10), st.WildCharge)
	if st.Phase == PhaseEnding {
		s += " | " + strings.ReplaceAll(string(st.End), "_", " ")
	}
	return s
}
