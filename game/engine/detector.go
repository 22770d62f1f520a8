package engine

// IsClean reports whether no active tile, wild or not, remains on the grid
func IsClean(g *Grid) bool {
	for range g.ActiveTiles() {
		return false
	}
	return true
}

// IsStuck reports whether no legal merge exists anywhere on the grid
func IsStuck(g *Grid) bool {
	var tiles []Tile
	hasWild, hasPlain := false, false
	for _, t := range g.ActiveTiles() {
		tiles = append(tiles, t)
		if t.IsWild() {
			hasWild = true
		} else {
			hasPlain = true
		}
	}

	if len(tiles) < 2 {
		return true
	}
	// a wild merges with any plain tile
	if hasWild && hasPlain {
		return false
	}

	for i := 0; i < len(tiles); i++ {
		for j := i + 1; j < len(tiles); j++ {
			if tiles[i].IsWild() && tiles[j].IsWild() {
				continue
			}
			if tiles[i].Value+tiles[j].Value <= CrackValue {
				return false
			}
		}
	}
	return true
}

// LegalMerges lists every ordered pair of coordinates that would resolve to a merge
func LegalMerges(g *Grid) [][2]Coord {
	type entry struct {
		c Coord
		t Tile
	}
	var active []entry
	for c, t := range g.ActiveTiles() {
		active = append(active, entry{c, t})
	}

	var moves [][2]Coord
	for _, a := range active {
		for _, b := range active {
			if a.c == b.c {
				continue
			}
			if a.t.IsWild() && b.t.IsWild() {
				continue
			}
			if a.t.IsWild() || b.t.IsWild() || a.t.Value+b.t.Value <= CrackValue {
				moves = append(moves, [2]Coord{a.c, b.c})
			}
		}
	}
	return moves
}
