package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrConfigNotFound  = errors.New("configuration not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, configName string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Game Operations
	Merge(ctx context.Context, sessionID string, src, dst engine.Coord) (*MergeResult, error)
	NextLevel(ctx context.Context, sessionID string) (*engine.State, error)
	Restart(ctx context.Context, sessionID string) (*engine.State, error)

	// Game State
	GetGameState(ctx context.Context, sessionID string) (*engine.State, error)
	GetMergeHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.Rules, error)
	SaveConfig(ctx context.Context, configName string, rules *engine.Rules) error

	// Scores
	Leaderboard(ctx context.Context, rulesName string, limit int) ([]ScoreEntry, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, configName string, rules *engine.Rules) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id, configName string, rules *engine.Rules) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles rule set loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.Rules, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.Rules
	SaveConfig(name string, rules *engine.Rules) error
}

// ScoreRecorder stores the final score of finished runs
type ScoreRecorder interface {
	Record(ctx context.Context, entry ScoreEntry) error
	Top(ctx context.Context, rulesName string, limit int) ([]ScoreEntry, error)
}

// Session represents an active game session. ID, Board, Rules, ConfigName,
// CreatedAt and RecoveredFrom are fixed once the session is handed out.
type Session struct {
	ID         string
	Board      *engine.Board
	Rules      *engine.Rules
	ConfigName string
	CreatedAt  time.Time

	// RecoveredFrom holds the restore error when a persisted snapshot was
	// unusable and the session was given a fresh board
	RecoveredFrom error

	mu             sync.Mutex
	runID          string
	lastAccessedAt time.Time
	history        []MergeRecord
	recorded       bool
}

// NewSession wraps a board in a session that starts a new run
func NewSession(id, configName string, board *engine.Board, rules *engine.Rules) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		Board:          board,
		Rules:          rules,
		ConfigName:     configName,
		CreatedAt:      now,
		runID:          uuid.NewString(),
		lastAccessedAt: now,
	}
}

// Resume restores the run bookkeeping of a persisted session
func (s *Session) Resume(runID string, lastAccessed time.Time, history []MergeRecord, recorded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if runID != "" {
		s.runID = runID
	}
	s.lastAccessedAt = lastAccessed
	s.history = trimHistory(append([]MergeRecord(nil), history...))
	s.recorded = recorded
}

// RunID identifies the current run
func (s *Session) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// NewRun starts a new run: fresh run ID, empty history
func (s *Session) NewRun() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = uuid.NewString()
	s.history = nil
	s.recorded = false
	return s.runID
}

// LastAccessedAt returns the last time the session was used
func (s *Session) LastAccessedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccessedAt
}

// Touch marks the session as used at t
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	s.lastAccessedAt = t
	s.mu.Unlock()
}

// RecordMerge appends a committed merge, dropping the oldest past the cap
func (s *Session) RecordMerge(rec MergeRecord) MergeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Seq = 1
	if n := len(s.history); n > 0 {
		rec.Seq = s.history[n-1].Seq + 1
	}
	s.history = trimHistory(append(s.history, rec))
	return rec
}

// MergeHistory returns a copy of the recorded merges, oldest first
func (s *Session) MergeHistory() []MergeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MergeRecord(nil), s.history...)
}

// MarkRecorded reports whether the current run's result still needed
// recording, and marks it recorded
func (s *Session) MarkRecorded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorded {
		return false
	}
	s.recorded = true
	return true
}

// Recorded reports whether the current run's result was already recorded
func (s *Session) Recorded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorded
}

func trimHistory(h []MergeRecord) []MergeRecord {
	if over := len(h) - engine.MaxMergeHistory; over > 0 {
		h = append([]MergeRecord(nil), h[over:]...)
	}
	return h
}
