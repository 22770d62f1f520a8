package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCells(t *testing.T) {
	t.Run("opens distinct locked cells", func(t *testing.T) {
		g := NewGrid(5, 5)
		s := NewSpawner(g, NewSeededRand(3))

		opened := s.OpenCells(6, false)
		require.Len(t, opened, 6)

		seen := map[Coord]bool{}
		for _, c := range opened {
			assert.False(t, seen[c], "duplicate %s", c)
			seen[c] = true
			tile, ok := g.Get(c)
			require.True(t, ok)
			assert.True(t, tile.Active())
			assert.Equal(t, SpecialNone, tile.Special)
			assert.Equal(t, MinStackDepth, tile.StackDepth)
			assert.GreaterOrEqual(t, tile.Value, MinSpawnValue)
			assert.LessOrEqual(t, tile.Value, MaxSpawnValue)
		}
		assert.Equal(t, 6, g.ActiveCount())
	})

	t.Run("opens as many as available", func(t *testing.T) {
		g := gridFrom(t, "1 1 1", "1 . 1", "1 1 .")
		s := NewSpawner(g, NewSeededRand(3))

		opened := s.OpenCells(4, true)
		assert.ElementsMatch(t, []Coord{at(1, 1), at(2, 2)}, opened)
		assert.Equal(t, 9, g.ActiveCount())
	})

	t.Run("full board opens nothing", func(t *testing.T) {
		g := gridFrom(t, "1 1 1", "1 1 1", "1 1 1")
		s := NewSpawner(g, NewSeededRand(3))
		assert.Empty(t, s.OpenCells(2, true))
		_, ok := s.OpenWild()
		assert.False(t, ok)
	})

	t.Run("first cell is wild when requested", func(t *testing.T) {
		g := NewGrid(5, 5)
		s := NewSpawner(g, NewSeededRand(11))

		opened := s.OpenCells(3, true)
		require.Len(t, opened, 3)
		first, _ := g.Get(opened[0])
		assert.True(t, first.IsWild())
		for _, c := range opened[1:] {
			tile, _ := g.Get(c)
			assert.False(t, tile.IsWild())
		}
	})
}

func TestSpawnValuesCoverRange(t *testing.T) {
	g := NewGrid(10, 10)
	s := NewSpawner(g, NewSeededRand(5))
	s.OpenCells(100, false)

	seen := map[int]bool{}
	for _, tile := range g.ActiveTiles() {
		seen[tile.Value] = true
	}
	for v := MinSpawnValue; v <= MaxSpawnValue; v++ {
		assert.True(t, seen[v], "value %d never spawned", v)
	}
	assert.False(t, seen[CrackValue], "six is never a spawn value")
}

func TestPickWildValueAvoidsConsumedValue(t *testing.T) {
	rng := NewSeededRand(8)
	for avoid := MinSpawnValue; avoid <= MaxSpawnValue; avoid++ {
		for i := 0; i < 200; i++ {
			v := pickWildValue(rng, avoid)
			assert.NotEqual(t, avoid, v)
			assert.GreaterOrEqual(t, v, MinSpawnValue)
			assert.LessOrEqual(t, v, MaxSpawnValue)
		}
	}
	for i := 0; i < 50; i++ {
		v := pickWildValue(rng, 0)
		assert.GreaterOrEqual(t, v, MinSpawnValue)
		assert.LessOrEqual(t, v, MaxSpawnValue)
	}
}

func TestWildMeter(t *testing.T) {
	sched := NewManualScheduler(epoch)
	m := NewWildMeter(600*time.Millisecond, sched, func(fn func()) { fn() })

	m.Add(0.6)
	assert.InDelta(t, 0.6, m.DisplayRatio(), 1e-9)
	assert.False(t, m.TryConsume())

	m.Add(0.55)
	assert.Equal(t, 1.0, m.DisplayRatio(), "display is capped")
	assert.InDelta(t, 1.15, m.Charge(), 1e-9, "stored charge is not")

	require.True(t, m.TryConsume())
	assert.InDelta(t, 0.15, m.Charge(), 1e-9)

	m.Add(2.0)
	require.True(t, m.TryConsume())
	require.True(t, m.TryConsume())
	assert.False(t, m.TryConsume())
	assert.InDelta(t, 0.15, m.Charge(), 1e-9)
}

func TestWildMeterRetry(t *testing.T) {
	sched := NewManualScheduler(epoch)
	m := NewWildMeter(600*time.Millisecond, sched, func(fn func()) { fn() })

	calls := 0
	m.deferSpawn(func() { calls++ })
	assert.True(t, m.InFlight())

	sched.Advance(599 * time.Millisecond)
	assert.Zero(t, calls)
	sched.Advance(time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.False(t, m.InFlight())

	m.deferSpawn(func() { calls++ })
	m.Cancel()
	assert.False(t, m.InFlight())
	sched.Advance(time.Second)
	assert.Equal(t, 1, calls, "cancelled retry never fires")
}

func TestComboTracker(t *testing.T) {
	sched := NewManualScheduler(epoch)
	c := NewComboTracker(3, 2*time.Second, sched, func(fn func()) { fn() })

	decays := 0
	c.onDecay = func() { decays++ }

	for i := 0; i < 5; i++ {
		c.OnMerge()
	}
	assert.Equal(t, uint32(3), c.Current(), "clamped to the cap")
	assert.Equal(t, 1, sched.Pending(), "one decay task at a time")

	sched.Advance(2 * time.Second)
	assert.Zero(t, c.Current())
	assert.Equal(t, 1, decays)

	c.OnMerge()
	c.Reset()
	assert.Zero(t, c.Current())
	sched.Advance(5 * time.Second)
	assert.Equal(t, 1, decays, "reset cancels the decay")
}
