package service

import (
	"time"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string        `json:"id"`
	RunID          string        `json:"run_id"`
	ConfigName     string        `json:"config_name"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
	GameState      *engine.State `json:"game_state"`
	Rules          *engine.Rules `json:"rules"`
	Recovered      string        `json:"recovered,omitempty"` // restore error when the saved board was replaced
}

// MergeResult contains the result of a merge proposal
type MergeResult struct {
	Success   bool                `json:"success"`
	Outcome   engine.MergeOutcome `json:"outcome"`
	Events    []engine.Event      `json:"events"`
	GameState *engine.State       `json:"game_state"`
	Message   string              `json:"message"`
}

// MergeRecord is one committed merge in a session's history
type MergeRecord struct {
	Seq        int                `json:"seq"`
	Src        engine.Coord       `json:"src"`
	Dst        engine.Coord       `json:"dst"`
	Kind       engine.OutcomeKind `json:"kind"`
	ScoreDelta uint64             `json:"score_delta"`
	Score      uint64             `json:"score"`
	Moves      uint32             `json:"moves"`
	Level      uint32             `json:"level"`
	Combo      uint32             `json:"combo"`
	Reopened   int                `json:"reopened,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// HistoryOptions configures merge history retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains paginated merge history
type HistoryResponse struct {
	Merges      []MergeRecord `json:"merges"`
	TotalMerges int           `json:"total_merges"`
	Page        int           `json:"page"`
	PageSize    int           `json:"page_size"`
	TotalPages  int           `json:"total_pages"`
	HasNext     bool          `json:"has_next"`
	HasPrevious bool          `json:"has_previous"`
}

// ConfigInfo provides information about a rule set
type ConfigInfo struct {
	Filename      string `json:"filename"`
	ConfigID      string `json:"config_id"` // The identifier to use for session creation
	Name          string `json:"name"`      // Display name
	Description   string `json:"description"`
	Rows          int    `json:"rows"`
	Cols          int    `json:"cols"`
	MovesPerBoard int    `json:"moves_per_board"`
}

// ScoreEntry is the recorded result of a run that ended in game over
type ScoreEntry struct {
	RunID     string    `json:"run_id"`
	SessionID string    `json:"session_id"`
	RulesName string    `json:"rules_name"`
	Score     uint64    `json:"score"`
	Level     uint32    `json:"level"`
	EndedAt   time.Time `json:"ended_at"`
}
