package session

import (
	"time"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
	"github.com/taptapdesign-jimi/cube-crash/game/service"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session to storage
	Save(session *service.Session) error

	// Load retrieves a persisted session by ID
	Load(id string) (*PersistedSessionData, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}

// PersistedSessionData is what survives a restart: the board snapshot plus
// the run bookkeeping. Timers are never persisted.
type PersistedSessionData struct {
	ID             string                `json:"id" msgpack:"id"`
	ConfigName     string                `json:"config_name" msgpack:"config_name"`
	RunID          string                `json:"run_id" msgpack:"run_id"`
	CreatedAt      time.Time             `json:"created_at" msgpack:"created_at"`
	LastAccessedAt time.Time             `json:"last_accessed_at" msgpack:"last_accessed_at"`
	Snapshot       *engine.Snapshot      `json:"snapshot" msgpack:"snapshot"`
	History        []service.MergeRecord `json:"history,omitempty" msgpack:"history"`
	Recorded       bool                  `json:"recorded,omitempty" msgpack:"recorded"`
}

// newPersistedSessionData captures a session for storage
func newPersistedSessionData(sess *service.Session) *PersistedSessionData {
	return &PersistedSessionData{
		ID:             sess.ID,
		ConfigName:     sess.ConfigName,
		RunID:          sess.RunID(),
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt(),
		Snapshot:       sess.Board.Snapshot(),
		History:        sess.MergeHistory(),
		Recorded:       sess.Recorded(),
	}
}

// validID reports whether id is safe to use as a storage key
func validID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
