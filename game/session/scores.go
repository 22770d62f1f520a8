package session

import (
	"context"
	"sort"
	"sync"

	"github.com/taptapdesign-jimi/cube-crash/game/service"
)

// MemoryScores is an in-memory ScoreRecorder for servers running without a database
type MemoryScores struct {
	mu      sync.RWMutex
	entries map[string]service.ScoreEntry
}

// NewMemoryScores creates an empty score ledger
func NewMemoryScores() *MemoryScores {
	return &MemoryScores{entries: make(map[string]service.ScoreEntry)}
}

// Record stores a finished run once per run ID
func (m *MemoryScores) Record(ctx context.Context, entry service.ScoreEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[entry.RunID]; !exists {
		m.entries[entry.RunID] = entry
	}
	return nil
}

// Top returns the best runs by score
func (m *MemoryScores) Top(ctx context.Context, rulesName string, limit int) ([]service.ScoreEntry, error) {
	m.mu.RLock()
	out := make([]service.ScoreEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if rulesName == "" || e.RulesName == rulesName {
			out = append(out, e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].EndedAt.Before(out[j].EndedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
