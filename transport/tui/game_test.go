package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
)

func newTestGame(t *testing.T) (*Game, tcell.SimulationScreen) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	screen.SetSize(100, 30)
	t.Cleanup(screen.Fini)

	game, err := NewGame(screen, engine.DefaultRules(),
		engine.WithRand(engine.NewSeededRand(7)),
		engine.WithScheduler(engine.NewManualScheduler(time.Unix(0, 0))),
	)
	require.NoError(t, err)
	t.Cleanup(game.Close)
	return game, screen
}

func key(k tcell.Key) *tcell.EventKey {
	return tcell.NewEventKey(k, 0, tcell.ModNone)
}

func runeKey(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

// rowText returns the characters drawn on screen row y
func rowText(screen tcell.SimulationScreen, y int) string {
	cells, width, _ := screen.GetContents()
	var b strings.Builder
	for x := 0; x < width; x++ {
		c := cells[y*width+x]
		if len(c.Runes) > 0 {
			b.WriteRune(c.Runes[0])
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.TrimRight(b.String(), " ")
}

func TestCursorMovement(t *testing.T) {
	game, _ := newTestGame(t)
	rules := game.board.Rules()

	game.handleKey(key(tcell.KeyLeft))
	game.handleKey(key(tcell.KeyUp))
	assert.Equal(t, engine.Coord{}, game.cursor)

	game.handleKey(key(tcell.KeyRight))
	game.handleKey(runeKey('j'))
	assert.Equal(t, engine.Coord{X: 1, Y: 1}, game.cursor)

	for range rules.Cols + rules.Rows {
		game.handleKey(runeKey('l'))
		game.handleKey(key(tcell.KeyDown))
	}
	assert.Equal(t, engine.Coord{X: rules.Cols - 1, Y: rules.Rows - 1}, game.cursor)
}

func TestSelection(t *testing.T) {
	game, _ := newTestGame(t)

	game.handleKey(runeKey(' '))
	require.NotNil(t, game.selected)
	assert.Equal(t, engine.Coord{}, *game.selected)

	game.handleKey(runeKey(' '))
	assert.Nil(t, game.selected)

	game.handleKey(runeKey(' '))
	game.handleKey(key(tcell.KeyRight))
	game.handleKey(runeKey(' '))
	require.NotNil(t, game.selected)
	assert.Equal(t, engine.Coord{X: 1}, *game.selected)
}

func TestMergeWithoutSelection(t *testing.T) {
	game, _ := newTestGame(t)

	game.handleKey(key(tcell.KeyEnter))
	assert.True(t, game.isError)
	assert.Nil(t, game.last)
}

func TestHintThenMerge(t *testing.T) {
	game, _ := newTestGame(t)
	before := game.board.State()

	game.handleKey(runeKey('?'))
	require.NotNil(t, game.selected)
	assert.False(t, game.isError)

	game.handleKey(key(tcell.KeyEnter))
	require.NotNil(t, game.last)
	assert.NotEqual(t, engine.OutcomeRejected, game.last.Outcome.Kind)
	assert.Nil(t, game.selected)
	assert.NotEqual(t, before.Grid, game.board.State().Grid)
}

func TestRejectedMerge(t *testing.T) {
	game, _ := newTestGame(t)

	// a cell merged into itself is never legal
	game.handleKey(runeKey(' '))
	game.handleKey(key(tcell.KeyEnter))
	require.NotNil(t, game.last)
	assert.Equal(t, engine.OutcomeRejected, game.last.Outcome.Kind)
	assert.True(t, game.isError)
	assert.Contains(t, game.message, "Rejected")
}

func TestLevelKeys(t *testing.T) {
	game, _ := newTestGame(t)

	game.handleKey(runeKey('n'))
	assert.True(t, game.isError)
	assert.Equal(t, "Clear the board before the next level", game.message)

	game.handleKey(key(tcell.KeyRight))
	game.handleKey(runeKey('r'))
	assert.False(t, game.isError)
	assert.Equal(t, engine.Coord{}, game.cursor)
	assert.Equal(t, engine.PhaseIdle, game.board.Phase())
}

func TestQuitKeys(t *testing.T) {
	game, _ := newTestGame(t)

	assert.False(t, game.handleKey(runeKey('q')))
	assert.False(t, game.handleKey(key(tcell.KeyEscape)))
	assert.False(t, game.handleKey(key(tcell.KeyCtrlC)))
	assert.True(t, game.handleKey(runeKey('x')))
}

func TestBoardEvents(t *testing.T) {
	game, _ := newTestGame(t)

	c := engine.Coord{X: 2, Y: 3}
	game.handleEvent(tcell.NewEventInterrupt(engine.Event{Type: engine.EventTileSpawned, Coord: &c, Value: 4, Wild: true}))
	assert.Equal(t, "Wild tile at (2,3)", game.message)

	game.handleEvent(tcell.NewEventInterrupt(engine.Event{Type: engine.EventGameOver, FinalScore: 120}))
	assert.True(t, game.isError)
	assert.Contains(t, game.message, "120 points")
}

func TestDraw(t *testing.T) {
	game, screen := newTestGame(t)
	game.draw()

	assert.Contains(t, rowText(screen, 0), "CUBE CRASH")
	assert.Contains(t, rowText(screen, 1), "Level 1")
	assert.Contains(t, rowText(screen, 2), "Wild [")

	st := game.board.State()
	first := rowText(screen, gridTop)
	assert.Contains(t, first, engine.TileSymbol(st.Grid[0][0]))

	bottom := gridTop + st.Rows*2 + 1
	assert.Contains(t, rowText(screen, bottom+1), "q quit")
}

func TestRunQuits(t *testing.T) {
	game, screen := newTestGame(t)

	done := make(chan error, 1)
	go func() { done <- game.Run(context.Background()) }()

	screen.InjectKey(tcell.KeyRune, 'l', tcell.ModNone)
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after q")
	}
}

func TestRunStopsOnContext(t *testing.T) {
	game, _ := newTestGame(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- game.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
