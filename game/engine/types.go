package engine

import (
	"errors"
	"fmt"
)

// Special marks a tile with a non-numeric behavior
type Special uint8

const (
	SpecialNone Special = iota
	SpecialWild
)

const (
	// Tile bounds
	MinSpawnValue = 1
	MaxSpawnValue = 5
	CrackValue    = 6
	MinStackDepth = 1
	MaxStackDepth = 4

	// Validation constants
	MinGridSize      = 3
	MaxGridSize      = 10
	DefaultComboCap  = 99
	DefaultScoreCap  = 999999
	MaxMergeHistory  = 500
	DefaultMovesSize = 30
)

var (
	ErrInvalidProposal  = errors.New("invalid merge proposal")
	ErrBusy             = errors.New("board is resolving another merge")
	ErrEnding           = errors.New("board has ended")
	ErrClosed           = errors.New("board is closed")
	ErrNotLevelComplete = errors.New("level is not complete")
	ErrNoCellAvailable  = errors.New("no locked cell available")
	ErrCorruptSnapshot  = errors.New("corrupt snapshot")
	ErrInvalidRules     = errors.New("invalid rules")
)

// String returns the wire name of the special
func (s Special) String() string {
	switch s {
	case SpecialNone:
		return "none"
	case SpecialWild:
		return "wild"
	default:
		return fmt.Sprintf("special(%d)", uint8(s))
	}
}

// MarshalText encodes the special as its name
func (s Special) MarshalText() ([]byte, error) {
	switch s {
	case SpecialNone, SpecialWild:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("unknown special %d", uint8(s))
	}
}

// UnmarshalText decodes a special from its name
func (s *Special) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "none":
		*s = SpecialNone
	case "wild":
		*s = SpecialWild
	default:
		return fmt.Errorf("unknown special %q", text)
	}
	return nil
}

// Coord addresses a cell on the board
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Tile is the value held by a cell. A locked tile is an empty placeholder.
type Tile struct {
	Value      int     `json:"value"`
	StackDepth int     `json:"stack_depth"`
	Special    Special `json:"special"`
	Locked     bool    `json:"locked"`
}

// LockedTile returns a fresh locked placeholder
func LockedTile() Tile {
	return Tile{Locked: true}
}

// NewTile returns an active tile with the given value
func NewTile(value int) Tile {
	return Tile{Value: value, StackDepth: MinStackDepth}
}

// NewWildTile returns an active wild tile showing the given face value
func NewWildTile(face int) Tile {
	return Tile{Value: face, StackDepth: MinStackDepth, Special: SpecialWild}
}

// Active reports whether the tile holds a playable value
func (t Tile) Active() bool {
	return !t.Locked
}

// IsWild reports whether the tile is an active wild
func (t Tile) IsWild() bool {
	return !t.Locked && t.Special == SpecialWild
}

// Phase is the orchestrator state
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseResolving Phase = "resolving"
	PhaseReopening Phase = "reopening"
	PhaseEnding    Phase = "ending"
)

// EndReason tells why a board entered the ending phase
type EndReason string

const (
	EndNone          EndReason = ""
	EndLevelComplete EndReason = "level_complete"
	EndGameOver      EndReason = "game_over"
)

// OutcomeKind classifies a merge resolution
type OutcomeKind string

const (
	OutcomeRejected   OutcomeKind = "rejected"
	OutcomeSmallMerge OutcomeKind = "small_merge"
	OutcomeCrack      OutcomeKind = "crack"
)

// MergeOutcome describes the resolution of one proposal
type MergeOutcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
	Src    Coord       `json:"src"`
	Dst    Coord       `json:"dst"`

	// SmallMerge
	NewValue int `json:"new_value,omitempty"`
	NewDepth int `json:"new_depth,omitempty"`

	// Crack
	CombinedDepth  int     `json:"combined_depth,omitempty"`
	Multiplier     int     `json:"multiplier,omitempty"`
	ReopenCount    int     `json:"reopen_count,omitempty"`
	GuaranteedWild bool    `json:"guaranteed_wild,omitempty"`
	Reopened       []Coord `json:"reopened,omitempty"`

	ScoreDelta uint64 `json:"score_delta"`
}

// Rejected reports whether the outcome mutated nothing
func (o MergeOutcome) Rejected() bool {
	return o.Kind == OutcomeRejected
}

// RunState holds the counters that survive between merges of one run
type RunState struct {
	Score              uint64 `json:"score"`
	Moves              uint32 `json:"moves"`
	Level              uint32 `json:"level"`
	WildGuaranteedOnce bool   `json:"wild_guaranteed_once"`
}

// AddScore adds delta to the score without passing limit and returns the applied amount
func (r *RunState) AddScore(delta, limit uint64) uint64 {
	if r.Score >= limit {
		return 0
	}
	if delta > limit-r.Score {
		delta = limit - r.Score
	}
	r.Score += delta
	return delta
}

// SpendMove decrements the move budget, stopping at zero
func (r *RunState) SpendMove() {
	if r.Moves > 0 {
		r.Moves--
	}
}

// MergeResult is returned to the input collaborator after a proposal
type MergeResult struct {
	Outcome MergeOutcome `json:"outcome"`
	Events  []Event      `json:"events"`
	Phase   Phase        `json:"phase"`
	End     EndReason    `json:"end,omitempty"`
}

// State is a read-only view of the board for clients
type State struct {
	Rows               int       `json:"rows"`
	Cols               int       `json:"cols"`
	Grid               [][]Tile  `json:"grid"`
	Score              uint64    `json:"score"`
	Moves              uint32    `json:"moves"`
	Level              uint32    `json:"level"`
	Combo              uint32    `json:"combo"`
	WildCharge         float64   `json:"wild_charge"`
	WildRatio          float64   `json:"wild_ratio"`
	WildGuaranteedOnce bool      `json:"wild_guaranteed_once"`
	Phase              Phase     `json:"phase"`
	End                EndReason `json:"end,omitempty"`
	ActiveTiles        int       `json:"active_tiles"`
	Clean              bool      `json:"clean"`
	Stuck              bool      `json:"stuck"`
	RulesName          string    `json:"rules_name"`
}
