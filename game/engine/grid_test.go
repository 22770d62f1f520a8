package engine

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid(t *testing.T) {
	g := NewGrid(2, 3)
	assert.Equal(t, 2, g.Rows())
	assert.Equal(t, 3, g.Cols())
	assert.Equal(t, 6, len(slices.Collect(g.LockedCells())))
	assert.Zero(t, g.ActiveCount())

	require.NoError(t, g.Set(at(2, 1), NewTile(4)))
	require.NoError(t, g.Set(at(0, 0), NewWildTile(2)))
	assert.Error(t, g.Set(at(3, 0), NewTile(1)))

	tile, ok := g.Get(at(2, 1))
	require.True(t, ok)
	assert.Equal(t, 4, tile.Value)
	_, ok = g.Get(at(0, 2))
	assert.False(t, ok)

	var active []Coord
	for c := range g.ActiveTiles() {
		active = append(active, c)
	}
	assert.Equal(t, []Coord{at(0, 0), at(2, 1)}, active, "row-major order")
	assert.NotContains(t, slices.Collect(g.LockedCells()), at(2, 1))

	clone := g.Clone()
	g.Lock(at(2, 1))
	tile, _ = g.Get(at(2, 1))
	assert.True(t, tile.Locked)
	tile, _ = clone.Get(at(2, 1))
	assert.False(t, tile.Locked, "clone is independent")

	m := clone.Matrix()
	require.Len(t, m, 2)
	require.Len(t, m[1], 3)
	assert.Equal(t, 4, m[1][2].Value)

	g.Reset(3, 3)
	assert.Equal(t, 9, len(slices.Collect(g.LockedCells())))
}

func TestManualSchedulerOrdering(t *testing.T) {
	s := NewManualScheduler(epoch)
	var order []string

	s.AfterFunc(300*time.Millisecond, func() { order = append(order, "c") })
	s.AfterFunc(100*time.Millisecond, func() {
		order = append(order, "a")
		s.AfterFunc(50*time.Millisecond, func() { order = append(order, "b") })
	})
	stopped := s.AfterFunc(200*time.Millisecond, func() { order = append(order, "x") })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	s.Advance(250 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, epoch.Add(250*time.Millisecond), s.Now())

	s.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, s.Pending())
}

func TestDeferredDropsStaleFiring(t *testing.T) {
	s := NewManualScheduler(epoch)
	var mu sync.Mutex
	exec := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
	}
	d := NewDeferred(s, exec)

	fired := 0
	mu.Lock()
	d.Arm(time.Second, func() { fired++ })
	d.Arm(2*time.Second, func() { fired += 10 })
	mu.Unlock()

	s.Advance(time.Second)
	assert.Zero(t, fired, "re-arming replaced the first callback")
	assert.True(t, d.Pending())

	s.Advance(time.Second)
	assert.Equal(t, 10, fired)
	assert.False(t, d.Pending())
}

func TestRealSchedulerStops(t *testing.T) {
	timer := RealScheduler{}.AfterFunc(time.Hour, func() {})
	assert.True(t, timer.Stop())
}
