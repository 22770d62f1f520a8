package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Engine provides the main interface for board operations
type Engine interface {
	// Turn input
	ProposeMerge(src, dst Coord) (*MergeResult, error)
	Preview(src, dst Coord) MergeOutcome
	Hint() ([2]Coord, bool)

	// Lifecycle
	NextLevel() (*State, error)
	Restart() (*State, error)
	Close()

	// Inspection
	State() *State
	Snapshot() *Snapshot
	Phase() Phase
	IsClean() bool
	IsStuck() bool
	Rules() *Rules
}

// Option configures a Board
type Option func(*Board)

// WithRand sets the random source used for spawns
func WithRand(rng Rand) Option {
	return func(b *Board) { b.rng = rng }
}

// WithScheduler sets the scheduler for the combo decay and wild retry tasks
func WithScheduler(s Scheduler) Option {
	return func(b *Board) { b.sched = s }
}

// WithLogger sets the board logger
func WithLogger(l *zap.Logger) Option {
	return func(b *Board) { b.logger = l }
}

// WithEventSink registers a receiver for every event, including those raised by deferred tasks
func WithEventSink(sink EventSink) Option {
	return func(b *Board) { b.sink = sink }
}

// Board is the orchestrator: it accepts merge proposals, drives the resolver and
// spawner, evaluates the board predicates and raises events.
type Board struct {
	mu   sync.Mutex
	busy atomic.Bool

	rules  *Rules
	rng    Rand
	sched  Scheduler
	logger *zap.Logger
	sink   EventSink

	grid     *Grid
	run      RunState
	combo    *ComboTracker
	meter    *WildMeter
	spawner  *Spawner
	resolver *Resolver

	phase   Phase
	end     EndReason
	closed  bool
	pending []Event
}

func newBoard(rules *Rules, opts ...Option) (*Board, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	b := &Board{
		rules:  rules.Clone(),
		sched:  RealScheduler{},
		logger: zap.NewNop(),
		phase:  PhaseIdle,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rng == nil {
		b.rng = NewRand()
	}

	b.grid = NewGrid(b.rules.Rows, b.rules.Cols)
	b.combo = NewComboTracker(b.rules.ComboCap, b.rules.ComboDecay(), b.sched, b.runDeferred)
	b.combo.onDecay = func() {
		b.logger.Debug("combo decayed")
		b.emit(comboChanged(0))
	}
	b.meter = NewWildMeter(b.rules.WildRetry(), b.sched, b.runDeferred)
	b.spawner = NewSpawner(b.grid, b.rng)
	b.resolver = NewResolver(b.rules, b.grid, &b.run, b.combo, b.meter)
	return b, nil
}

// NewBoard creates a board for a fresh run and deals the first level
func NewBoard(rules *Rules, opts ...Option) (*Board, error) {
	b, err := newBoard(rules, opts...)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.startRun()
	b.pending = nil
	b.mu.Unlock()

	return b, nil
}

// runDeferred executes a deferred callback under the board lock and
// publishes whatever it emitted
func (b *Board) runDeferred(fn func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	fn()
	evs := b.drain()
	b.mu.Unlock()
	b.dispatch(evs)
}

func (b *Board) emit(ev Event) {
	b.pending = append(b.pending, ev)
}

func (b *Board) drain() []Event {
	evs := b.pending
	b.pending = nil
	return evs
}

func (b *Board) dispatch(evs []Event) {
	if b.sink == nil {
		return
	}
	for _, ev := range evs {
		b.sink(ev)
	}
}

// ProposeMerge merges the tile at src into the tile at dst. A proposal that
// arrives while another one is resolving is rejected with ErrBusy.
func (b *Board) ProposeMerge(src, dst Coord) (*MergeResult, error) {
	if !b.busy.CompareAndSwap(false, true) {
		return &MergeResult{
			Outcome: reject(src, dst, "another merge is resolving"),
			Phase:   PhaseResolving,
		}, ErrBusy
	}
	defer b.busy.Store(false)

	b.mu.Lock()
	res, err := b.propose(src, dst)
	evs := b.drain()
	b.mu.Unlock()

	res.Events = evs
	b.dispatch(evs)
	return res, err
}

func (b *Board) propose(src, dst Coord) (*MergeResult, error) {
	if b.closed {
		return &MergeResult{Outcome: reject(src, dst, "board is closed"), Phase: b.phase}, ErrClosed
	}
	if b.phase == PhaseEnding {
		return &MergeResult{Outcome: reject(src, dst, "board has ended"), Phase: b.phase, End: b.end}, ErrEnding
	}

	b.phase = PhaseResolving
	prevScore := b.run.Score
	consumed, _ := b.grid.Get(dst)

	out := b.resolver.Resolve(src, dst)
	if out.Rejected() {
		b.phase = PhaseIdle
		b.logger.Debug("merge rejected",
			zap.Stringer("src", src),
			zap.Stringer("dst", dst),
			zap.String("reason", out.Reason))
		return &MergeResult{Outcome: out, Phase: b.phase}, fmt.Errorf("%w: %s", ErrInvalidProposal, out.Reason)
	}

	b.run.SpendMove()

	switch out.Kind {
	case OutcomeSmallMerge:
		t, _ := b.grid.Get(dst)
		b.emit(tileRemoved(src))
		b.emit(tileChanged(dst, t))
	case OutcomeCrack:
		b.emit(tileRemoved(src))
		b.emit(tileRemoved(dst))
		b.phase = PhaseReopening
		b.reopen(&out, consumed)
	}

	b.emit(scoreChanged(b.run.Score-prevScore, b.run.Score))
	b.emit(comboChanged(b.combo.Current()))
	b.emit(wildMeterChanged(b.meter.DisplayRatio()))

	b.logger.Debug("merge resolved",
		zap.String("kind", string(out.Kind)),
		zap.Stringer("src", src),
		zap.Stringer("dst", dst),
		zap.Uint64("score_delta", out.ScoreDelta),
		zap.Uint64("score", b.run.Score),
		zap.Uint32("moves", b.run.Moves))

	if out.Kind == OutcomeCrack && IsClean(b.grid) {
		b.finishClean()
	} else {
		b.attemptWildSpawn()
		b.checkStuck()
	}

	return &MergeResult{Outcome: out, Phase: b.phase, End: b.end}, nil
}

// reopen runs the cascade after a crack. Once the move budget is spent the
// board drains instead.
func (b *Board) reopen(out *MergeOutcome, consumed Tile) {
	if b.run.Moves == 0 {
		out.GuaranteedWild = false
		b.logger.Debug("move budget spent, skipping cascade")
		return
	}

	b.spawner.wildAvoid = consumed.Value
	opened := b.spawner.OpenCells(out.ReopenCount, out.GuaranteedWild)
	if len(opened) == 0 {
		out.GuaranteedWild = false
	} else if out.GuaranteedWild {
		b.run.WildGuaranteedOnce = true
	}
	out.Reopened = opened

	for _, c := range opened {
		t, _ := b.grid.Get(c)
		b.emit(tileSpawned(c, t))
	}
}

// attemptWildSpawn places wilds while the meter can pay for them. When the
// board is full the attempt is retried by the meter's deferred task.
func (b *Board) attemptWildSpawn() {
	if b.phase == PhaseEnding || b.closed {
		return
	}
	for b.meter.Ready() {
		c, ok := b.spawner.OpenWild()
		if !ok {
			if !b.meter.InFlight() {
				b.logger.Debug("wild spawn deferred",
					zap.Error(ErrNoCellAvailable),
					zap.Duration("retry", b.rules.WildRetry()))
				b.meter.deferSpawn(b.attemptWildSpawn)
			}
			return
		}
		// a freed cell supersedes the pending retry
		if b.meter.InFlight() {
			b.meter.Cancel()
		}
		b.meter.TryConsume()
		t, _ := b.grid.Get(c)
		b.emit(tileSpawned(c, t))
		b.emit(wildMeterChanged(b.meter.DisplayRatio()))
		b.logger.Debug("wild spawned", zap.Stringer("coord", c), zap.Float64("charge", b.meter.Charge()))
	}
}

func (b *Board) finishClean() {
	bonus := b.rules.CleanBonusFor(b.run.Level)
	applied := b.run.AddScore(bonus, b.rules.ScoreCap)
	b.emit(boardClean(bonus))
	if applied > 0 {
		b.emit(scoreChanged(applied, b.run.Score))
	}
	b.enterEnding(EndLevelComplete)
	b.logger.Info("board clean",
		zap.Uint32("level", b.run.Level),
		zap.Uint64("bonus", bonus),
		zap.Uint64("score", b.run.Score))
}

func (b *Board) checkStuck() {
	if !IsStuck(b.grid) {
		b.phase = PhaseIdle
		return
	}
	b.emit(gameOver(b.run.Score))
	b.enterEnding(EndGameOver)
	b.logger.Info("game over",
		zap.Uint32("level", b.run.Level),
		zap.Uint64("final_score", b.run.Score))
}

func (b *Board) enterEnding(reason EndReason) {
	b.phase = PhaseEnding
	b.end = reason
	b.meter.Cancel()
}

// startRun resets the run counters and deals level one
func (b *Board) startRun() {
	b.combo.Reset()
	b.meter.Reset()
	b.run = RunState{Level: 1}
	b.deal()
}

// deal rebuilds the grid for the current level
func (b *Board) deal() {
	b.meter.Cancel()
	b.run.Moves = uint32(b.rules.MovesPerBoard)
	b.spawner.wildAvoid = 0

	for attempt := 1; ; attempt++ {
		b.grid.Reset(b.rules.Rows, b.rules.Cols)
		b.spawner.OpenCells(b.rules.InitialTiles, false)
		if !IsStuck(b.grid) || attempt >= b.rules.DealAttempts {
			break
		}
		b.logger.Debug("redealing stuck board", zap.Int("attempt", attempt))
	}

	b.phase = PhaseIdle
	b.end = EndNone
	b.emit(boardDealt(b.run.Level))
	for c, t := range b.grid.ActiveTiles() {
		b.emit(tileSpawned(c, t))
	}
	b.emit(scoreChanged(0, b.run.Score))
	b.emit(comboChanged(b.combo.Current()))
	b.emit(wildMeterChanged(b.meter.DisplayRatio()))

	b.attemptWildSpawn()
	b.checkStuck()
}

// NextLevel deals the next board after a level was cleared
func (b *Board) NextLevel() (*State, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.phase != PhaseEnding || b.end != EndLevelComplete {
		b.mu.Unlock()
		return nil, ErrNotLevelComplete
	}

	b.combo.Reset()
	b.run.Level++
	b.deal()
	st := b.state()
	evs := b.drain()
	b.mu.Unlock()

	b.logger.Info("level started", zap.Uint32("level", st.Level))
	b.dispatch(evs)
	return st, nil
}

// Restart abandons the current run and starts a new one
func (b *Board) Restart() (*State, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.startRun()
	st := b.state()
	evs := b.drain()
	b.mu.Unlock()

	b.dispatch(evs)
	return st, nil
}

// Close cancels pending deferred tasks; the board rejects all further input
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.combo.Reset()
	b.meter.Cancel()
}

// Preview evaluates a proposal without committing it
func (b *Board) Preview(src, dst Coord) MergeOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resolver.Evaluate(src, dst)
}

// Hint returns the legal merge with the highest immediate score
func (b *Board) Hint() ([2]Coord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var best [2]Coord
	var bestScore uint64
	found := false
	for _, m := range LegalMerges(b.grid) {
		out := b.resolver.Evaluate(m[0], m[1])
		if out.Rejected() {
			continue
		}
		if !found || out.ScoreDelta > bestScore {
			best, bestScore, found = m, out.ScoreDelta, true
		}
	}
	return best, found
}

// State returns a copy of the board state
func (b *Board) State() *State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state()
}

func (b *Board) state() *State {
	return &State{
		Rows:               b.grid.Rows(),
		Cols:               b.grid.Cols(),
		Grid:               b.grid.Matrix(),
		Score:              b.run.Score,
		Moves:              b.run.Moves,
		Level:              b.run.Level,
		Combo:              b.combo.Current(),
		WildCharge:         b.meter.Charge(),
		WildRatio:          b.meter.DisplayRatio(),
		WildGuaranteedOnce: b.run.WildGuaranteedOnce,
		Phase:              b.phase,
		End:                b.end,
		ActiveTiles:        b.grid.ActiveCount(),
		Clean:              IsClean(b.grid),
		Stuck:              IsStuck(b.grid),
		RulesName:          b.rules.Name,
	}
}

// Phase returns the orchestrator phase
func (b *Board) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// IsClean reports whether the board has no active tiles
func (b *Board) IsClean() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return IsClean(b.grid)
}

// IsStuck reports whether no legal merge remains
func (b *Board) IsStuck() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return IsStuck(b.grid)
}

// Rules returns a copy of the rules the board plays by
func (b *Board) Rules() *Rules {
	return b.rules.Clone()
}
