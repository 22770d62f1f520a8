// Package tui plays a local Cube Crash board in the terminal.
//
// Keys: arrows or hjkl move the cursor, space selects the source tile, enter
// merges the selection into the cell under the cursor, ? shows a hint, n deals
// the next level, r restarts and q quits.
package tui

import (
	"context"
	"errors"
	"fmt"

	"github.com/gdamore/tcell/v2"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
)

// Layout
const (
	cellWidth = 5
	gridLeft  = 2
	gridTop   = 4
	meterSize = 20
)

var (
	styleDefault  = tcell.StyleDefault
	styleTitle    = tcell.StyleDefault.Foreground(tcell.ColorAqua).Bold(true)
	styleLocked   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleTile     = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleStacked  = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleWild     = tcell.StyleDefault.Foreground(tcell.ColorFuchsia).Bold(true)
	styleSelected = tcell.StyleDefault.Background(tcell.ColorGreen).Foreground(tcell.ColorBlack)
	styleMessage  = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleError    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleHelp     = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

// Game binds a board to a terminal screen
type Game struct {
	screen tcell.Screen
	board  *engine.Board

	cursor   engine.Coord
	selected *engine.Coord
	message  string
	isError  bool
	last     *engine.MergeResult
}

// NewGame creates a board for rules and draws it on screen. Board events are
// posted to the screen so deferred spawns and combo resets trigger a redraw.
func NewGame(screen tcell.Screen, rules *engine.Rules, opts ...engine.Option) (*Game, error) {
	g := &Game{screen: screen}

	opts = append(opts, engine.WithEventSink(func(ev engine.Event) {
		// a full queue only skips a redraw
		_ = screen.PostEvent(tcell.NewEventInterrupt(ev))
	}))
	board, err := engine.NewBoard(rules, opts...)
	if err != nil {
		return nil, fmt.Errorf("tui: %w", err)
	}
	g.board = board
	g.message = "Select a tile with space, move to a target and press enter"
	return g, nil
}

// Board returns the board being played
func (g *Game) Board() *engine.Board {
	return g.board
}

// Close stops the board timers
func (g *Game) Close() {
	g.board.Close()
}

// Run processes terminal events until the player quits or ctx is done
func (g *Game) Run(ctx context.Context) error {
	events := make(chan tcell.Event, 64)
	quit := make(chan struct{})
	go g.screen.ChannelEvents(events, quit)
	defer close(quit)

	g.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !g.handleEvent(ev) {
				return nil
			}
			g.draw()
		}
	}
}

// handleEvent applies one terminal event and reports whether to keep running
func (g *Game) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return g.handleKey(ev)
	case *tcell.EventInterrupt:
		if bev, ok := ev.Data().(engine.Event); ok {
			g.onBoardEvent(bev)
		}
	case *tcell.EventResize:
		g.screen.Sync()
	}
	return true
}

func (g *Game) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyUp:
		g.move(0, -1)
	case tcell.KeyDown:
		g.move(0, 1)
	case tcell.KeyLeft:
		g.move(-1, 0)
	case tcell.KeyRight:
		g.move(1, 0)
	case tcell.KeyEnter:
		g.merge()
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return false
		case 'k':
			g.move(0, -1)
		case 'j':
			g.move(0, 1)
		case 'h':
			g.move(-1, 0)
		case 'l':
			g.move(1, 0)
		case ' ':
			g.toggleSelect()
		case '?':
			g.hint()
		case 'n':
			g.nextLevel()
		case 'r':
			g.restart()
		}
	}
	return true
}

func (g *Game) move(dx, dy int) {
	rules := g.board.Rules()
	g.cursor.X = max(0, min(rules.Cols-1, g.cursor.X+dx))
	g.cursor.Y = max(0, min(rules.Rows-1, g.cursor.Y+dy))
}

func (g *Game) toggleSelect() {
	if g.selected != nil && *g.selected == g.cursor {
		g.selected = nil
		return
	}
	c := g.cursor
	g.selected = &c
}

func (g *Game) merge() {
	if g.selected == nil {
		g.setError("Select a source tile with space first")
		return
	}
	src, dst := *g.selected, g.cursor
	g.selected = nil

	res, err := g.board.ProposeMerge(src, dst)
	g.last = res
	if err != nil && res.Outcome.Kind != engine.OutcomeRejected {
		g.setError(err.Error())
		return
	}
	g.describe(res)
}

func (g *Game) describe(res *engine.MergeResult) {
	out := res.Outcome
	switch out.Kind {
	case engine.OutcomeRejected:
		g.setError("Rejected: " + out.Reason)
		return
	case engine.OutcomeSmallMerge:
		g.setMessage(fmt.Sprintf("%s -> %s: merged into %d", out.Src, out.Dst, out.NewValue))
	case engine.OutcomeCrack:
		g.setMessage(fmt.Sprintf("CRACK! +%d (x%d), %d cells reopened", out.ScoreDelta, out.Multiplier, len(out.Reopened)))
	}
	switch res.End {
	case engine.EndLevelComplete:
		g.setMessage("Board clean! Press n for the next level")
	case engine.EndGameOver:
		g.setError(fmt.Sprintf("Game over with %d points. Press r to restart", g.board.State().Score))
	}
}

func (g *Game) hint() {
	pair, ok := g.board.Hint()
	if !ok {
		g.setError("No legal merges")
		return
	}
	src := pair[0]
	g.selected = &src
	g.cursor = pair[1]
	g.setMessage(fmt.Sprintf("Try %s -> %s, press enter", pair[0], pair[1]))
}

func (g *Game) nextLevel() {
	st, err := g.board.NextLevel()
	if err != nil {
		g.setError(errorText(err))
		return
	}
	g.selected = nil
	g.setMessage(fmt.Sprintf("Level %d", st.Level))
}

func (g *Game) restart() {
	if _, err := g.board.Restart(); err != nil {
		g.setError(errorText(err))
		return
	}
	g.selected = nil
	g.cursor = engine.Coord{}
	g.setMessage("New run started")
}

// onBoardEvent reacts to events raised outside a key press
func (g *Game) onBoardEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventTileSpawned:
		if ev.Wild && ev.Coord != nil {
			g.setMessage(fmt.Sprintf("Wild tile at %s", *ev.Coord))
		}
	case engine.EventGameOver:
		g.setError(fmt.Sprintf("Game over with %d points. Press r to restart", ev.FinalScore))
	}
}

func errorText(err error) string {
	if errors.Is(err, engine.ErrNotLevelComplete) {
		return "Clear the board before the next level"
	}
	return err.Error()
}

func (g *Game) setMessage(msg string) {
	g.message, g.isError = msg, false
}

func (g *Game) setError(msg string) {
	g.message, g.isError = msg, true
}

func (g *Game) draw() {
	g.screen.Clear()
	st := g.board.State()

	g.print(gridLeft, 0, styleTitle, "CUBE CRASH")
	g.print(gridLeft, 1, styleDefault, fmt.Sprintf("Level %d   Score %d   Moves %d   Combo x%d", st.Level, st.Score, st.Moves, st.Combo))
	g.print(gridLeft, 2, styleWild, "Wild "+engine.MeterBar(st.WildRatio, meterSize))

	for y, row := range st.Grid {
		for x, t := range row {
			g.drawCell(engine.Coord{X: x, Y: y}, t)
		}
	}

	bottom := gridTop + st.Rows*2 + 1
	if g.message != "" {
		style := styleMessage
		if g.isError {
			style = styleError
		}
		g.print(gridLeft, bottom, style, g.message)
	}
	g.print(gridLeft, bottom+1, styleHelp, "arrows/hjkl move  space select  enter merge  ? hint  n next  r restart  q quit")
	g.screen.Show()
}

func (g *Game) drawCell(c engine.Coord, t engine.Tile) {
	style := styleTile
	switch {
	case t.Locked:
		style = styleLocked
	case t.IsWild():
		style = styleWild
	case t.StackDepth > 1:
		style = styleStacked
	}
	if g.selected != nil && *g.selected == c {
		style = styleSelected
	}
	if g.cursor == c {
		style = style.Reverse(true)
	}

	label := fmt.Sprintf("%-*s", cellWidth-1, engine.TileSymbol(t))
	g.print(gridLeft+c.X*cellWidth, gridTop+c.Y*2, style, label)
}

func (g *Game) print(x, y int, style tcell.Style, s string) {
	for _, r := range s {
		g.screen.SetContent(x, y, r, nil, style)
		x++
	}
}
