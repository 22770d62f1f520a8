package engine

import "slices"

// Spawner opens locked cells with fresh tiles
type Spawner struct {
	grid *Grid
	rng  Rand

	// wildAvoid is the face value a forced wild should not show
	wildAvoid int
}

// NewSpawner creates a spawner over grid
func NewSpawner(grid *Grid, rng Rand) *Spawner {
	return &Spawner{grid: grid, rng: rng}
}

// OpenCells opens up to count distinct random locked cells. When wildFirst is
// set the first opened cell is a wild. Fewer cells are opened when the board
// has fewer locked cells; it never fails.
func (s *Spawner) OpenCells(count int, wildFirst bool) []Coord {
	locked := slices.Collect(s.grid.LockedCells())
	if count > len(locked) {
		count = len(locked)
	}
	if count <= 0 {
		return nil
	}

	// partial Fisher-Yates
	for i := 0; i < count; i++ {
		j := i + s.rng.IntN(len(locked)-i)
		locked[i], locked[j] = locked[j], locked[i]
	}
	opened := locked[:count:count]

	for i, c := range opened {
		if i == 0 && wildFirst {
			_ = s.grid.Set(c, NewWildTile(pickWildValue(s.rng, s.wildAvoid)))
			continue
		}
		_ = s.grid.Set(c, NewTile(s.spawnValue()))
	}
	return opened
}

// OpenWild opens one random locked cell as a wild
func (s *Spawner) OpenWild() (Coord, bool) {
	locked := slices.Collect(s.grid.LockedCells())
	if len(locked) == 0 {
		return Coord{}, false
	}
	c := locked[s.rng.IntN(len(locked))]
	_ = s.grid.Set(c, NewWildTile(pickWildValue(s.rng, s.wildAvoid)))
	return c, true
}

func (s *Spawner) spawnValue() int {
	return MinSpawnValue + s.rng.IntN(MaxSpawnValue-MinSpawnValue+1)
}
