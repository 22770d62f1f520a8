package engine

import (
	"fmt"
	"iter"
)

// Grid stores one tile per coordinate in a row-major arena
type Grid struct {
	rows  int
	cols  int
	cells []Tile
}

// NewGrid creates a grid of locked placeholders
func NewGrid(rows, cols int) *Grid {
	g := &Grid{}
	g.Reset(rows, cols)
	return g
}

// Reset replaces every cell with a fresh locked placeholder
func (g *Grid) Reset(rows, cols int) {
	g.rows = rows
	g.cols = cols
	g.cells = make([]Tile, rows*cols)
	for i := range g.cells {
		g.cells[i] = LockedTile()
	}
}

// Rows returns the number of rows
func (g *Grid) Rows() int {
	return g.rows
}

// Cols returns the number of columns
func (g *Grid) Cols() int {
	return g.cols
}

// InBounds reports whether c addresses a cell
func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.X < g.cols && c.Y >= 0 && c.Y < g.rows
}

func (g *Grid) index(c Coord) int {
	return c.Y*g.cols + c.X
}

func (g *Grid) coord(i int) Coord {
	return Coord{X: i % g.cols, Y: i / g.cols}
}

// Get returns the tile at c; ok is false when c is out of bounds
func (g *Grid) Get(c Coord) (Tile, bool) {
	if !g.InBounds(c) {
		return Tile{}, false
	}
	return g.cells[g.index(c)], true
}

// Set stores t at c
func (g *Grid) Set(c Coord, t Tile) error {
	if !g.InBounds(c) {
		return fmt.Errorf("grid: coordinate %s out of bounds", c)
	}
	g.cells[g.index(c)] = t
	return nil
}

// Lock replaces the tile at c with a locked placeholder
func (g *Grid) Lock(c Coord) {
	if g.InBounds(c) {
		g.cells[g.index(c)] = LockedTile()
	}
}

// ActiveTiles yields every active tile with its coordinate in row-major order
func (g *Grid) ActiveTiles() iter.Seq2[Coord, Tile] {
	return func(yield func(Coord, Tile) bool) {
		for i, t := range g.cells {
			if t.Locked {
				continue
			}
			if !yield(g.coord(i), t) {
				return
			}
		}
	}
}

// LockedCells yields every locked coordinate in row-major order
func (g *Grid) LockedCells() iter.Seq[Coord] {
	return func(yield func(Coord) bool) {
		for i, t := range g.cells {
			if !t.Locked {
				continue
			}
			if !yield(g.coord(i)) {
				return
			}
		}
	}
}

// ActiveCount returns the number of active tiles
func (g *Grid) ActiveCount() int {
	n := 0
	for _, t := range g.cells {
		if !t.Locked {
			n++
		}
	}
	return n
}

// Matrix returns a copy of the grid as rows of tiles
func (g *Grid) Matrix() [][]Tile {
	out := make([][]Tile, g.rows)
	for y := range out {
		row := make([]Tile, g.cols)
		copy(row, g.cells[y*g.cols:(y+1)*g.cols])
		out[y] = row
	}
	return out
}

// Clone returns a deep copy of the grid
func (g *Grid) Clone() *Grid {
	cells := make([]Tile, len(g.cells))
	copy(cells, g.cells)
	return &Grid{rows: g.rows, cols: g.cols, cells: cells}
}
