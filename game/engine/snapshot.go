package engine

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Snapshot is everything needed to resume a board. Nothing else is persisted.
type Snapshot struct {
	Rows               int      `json:"rows" msgpack:"rows"`
	Cols               int      `json:"cols" msgpack:"cols"`
	Grid               [][]Tile `json:"grid" msgpack:"grid"`
	Score              uint64   `json:"score" msgpack:"score"`
	Moves              uint32   `json:"moves" msgpack:"moves"`
	Level              uint32   `json:"level" msgpack:"level"`
	Combo              uint32   `json:"combo" msgpack:"combo"`
	WildCharge         float64  `json:"wild_charge" msgpack:"wild_charge"`
	WildGuaranteedOnce bool     `json:"wild_guaranteed_once" msgpack:"wild_guaranteed_once"`
}

// Snapshot captures the board for persistence
func (b *Board) Snapshot() *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Snapshot{
		Rows:               b.grid.Rows(),
		Cols:               b.grid.Cols(),
		Grid:               b.grid.Matrix(),
		Score:              b.run.Score,
		Moves:              b.run.Moves,
		Level:              b.run.Level,
		Combo:              b.combo.Current(),
		WildCharge:         b.meter.Charge(),
		WildGuaranteedOnce: b.run.WildGuaranteedOnce,
	}
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}

// Validate checks the snapshot against the board invariants for the given rules
func (s *Snapshot) Validate(rules *Rules) error {
	if s == nil {
		return corrupt("snapshot is nil")
	}
	if s.Rows != rules.Rows || s.Cols != rules.Cols {
		return corrupt("board is %dx%d, rules require %dx%d", s.Rows, s.Cols, rules.Rows, rules.Cols)
	}
	if len(s.Grid) != s.Rows {
		return corrupt("grid has %d rows, want %d", len(s.Grid), s.Rows)
	}
	for y, row := range s.Grid {
		if len(row) != s.Cols {
			return corrupt("row %d has %d cells, want %d", y, len(row), s.Cols)
		}
		for x, t := range row {
			if err := validateTile(t); err != nil {
				return corrupt("cell (%d,%d): %v", x, y, err)
			}
		}
	}
	if s.Score > rules.ScoreCap {
		return corrupt("score %d exceeds cap %d", s.Score, rules.ScoreCap)
	}
	if s.Moves > uint32(rules.MovesPerBoard) {
		return corrupt("moves %d exceed budget %d", s.Moves, rules.MovesPerBoard)
	}
	if s.Level < 1 {
		return corrupt("level must be at least 1")
	}
	if s.Combo > uint32(rules.ComboCap) {
		return corrupt("combo %d exceeds cap %d", s.Combo, rules.ComboCap)
	}
	if math.IsNaN(s.WildCharge) || math.IsInf(s.WildCharge, 0) || s.WildCharge < 0 {
		return corrupt("wild charge %v is not a finite non-negative number", s.WildCharge)
	}
	return nil
}

func validateTile(t Tile) error {
	if t.Special != SpecialNone && t.Special != SpecialWild {
		return fmt.Errorf("unknown special %d", t.Special)
	}
	if t.Locked {
		if t.Value != 0 || t.Special != SpecialNone {
			return fmt.Errorf("locked cell carries value %d special %s", t.Value, t.Special)
		}
		return nil
	}
	if t.StackDepth < MinStackDepth || t.StackDepth > MaxStackDepth {
		return fmt.Errorf("stack depth %d out of range", t.StackDepth)
	}
	if t.Value < MinSpawnValue || t.Value > MaxSpawnValue {
		return fmt.Errorf("value %d out of range", t.Value)
	}
	return nil
}

// Restore rebuilds a board from a snapshot. The phase is derived from the
// board predicates; a pending combo resumes its full decay window.
func Restore(rules *Rules, snap *Snapshot, opts ...Option) (*Board, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	if err := snap.Validate(rules); err != nil {
		return nil, err
	}

	b, err := newBoard(rules, opts...)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for y, row := range snap.Grid {
		for x, t := range row {
			_ = b.grid.Set(Coord{X: x, Y: y}, t)
		}
	}
	b.run = RunState{
		Score:              snap.Score,
		Moves:              snap.Moves,
		Level:              snap.Level,
		WildGuaranteedOnce: snap.WildGuaranteedOnce,
	}
	b.meter.restore(snap.WildCharge)
	b.combo.restore(snap.Combo)

	switch {
	case IsClean(b.grid):
		b.enterEnding(EndLevelComplete)
	case IsStuck(b.grid):
		b.enterEnding(EndGameOver)
	default:
		b.phase = PhaseIdle
		b.attemptWildSpawn()
	}
	b.pending = nil

	return b, nil
}

// RestoreOrFresh restores a snapshot, falling back to a fresh board when the
// snapshot is unusable. The restore error is returned alongside the fresh board.
func RestoreOrFresh(rules *Rules, snap *Snapshot, opts ...Option) (*Board, error) {
	b, err := Restore(rules, snap, opts...)
	if err == nil {
		return b, nil
	}

	fresh, ferr := NewBoard(rules, opts...)
	if ferr != nil {
		return nil, ferr
	}
	fresh.logger.Warn("snapshot rejected, starting fresh board", zap.Error(err))
	return fresh, err
}
