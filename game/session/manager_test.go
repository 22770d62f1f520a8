package session

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
	"github.com/taptapdesign-jimi/cube-crash/game/service"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func createTestRules() *engine.Rules {
	rules := engine.DefaultRules()
	rules.Name = "classic"
	rules.Description = "Test rules"
	return rules
}

func deterministic() Option {
	return WithBoardOptions(
		engine.WithScheduler(engine.NewManualScheduler(epoch)),
		engine.WithRand(engine.NewSeededRand(11)),
	)
}

func newTestManager() *Manager {
	return NewManager(deterministic())
}

func TestManager_Create(t *testing.T) {
	manager := newTestManager()
	rules := createTestRules()

	t.Run("create with custom ID", func(t *testing.T) {
		session, err := manager.Create("test-session", "classic", rules)
		require.NoError(t, err)
		assert.Equal(t, "test-session", session.ID)
		assert.Equal(t, "classic", session.ConfigName)
		require.NotNil(t, session.Board)
		assert.NotEmpty(t, session.RunID())
		assert.Equal(t, engine.PhaseIdle, session.Board.Phase())
	})

	t.Run("create with auto-generated ID", func(t *testing.T) {
		session, err := manager.Create("", "classic", rules)
		require.NoError(t, err)
		assert.Len(t, session.ID, 4)
		assert.Equal(t, strings.ToLower(session.ID), session.ID)
	})

	t.Run("duplicate session ID", func(t *testing.T) {
		_, err := manager.Create("test-session", "classic", rules)
		assert.ErrorIs(t, err, ErrSessionAlreadyExists)
	})

	t.Run("case-insensitive duplicate check", func(t *testing.T) {
		_, err := manager.Create("TEST-SESSION", "classic", rules)
		assert.ErrorIs(t, err, ErrSessionAlreadyExists)
	})

	t.Run("invalid ID", func(t *testing.T) {
		_, err := manager.Create("../escape", "classic", rules)
		assert.ErrorIs(t, err, ErrInvalidSessionID)
	})

	t.Run("invalid rules", func(t *testing.T) {
		invalid := createTestRules()
		invalid.Rows = 1
		_, err := manager.Create("invalid-test", "classic", invalid)
		assert.ErrorIs(t, err, engine.ErrInvalidRules)
	})
}

func TestManager_Get(t *testing.T) {
	manager := newTestManager()
	created, err := manager.Create("get-test", "classic", createTestRules())
	require.NoError(t, err)

	t.Run("get existing session", func(t *testing.T) {
		session, err := manager.Get("get-test")
		require.NoError(t, err)
		assert.Same(t, created, session)
	})

	t.Run("case-insensitive get", func(t *testing.T) {
		session, err := manager.Get("GET-TEST")
		require.NoError(t, err)
		assert.Same(t, created, session)
	})

	t.Run("get non-existent session", func(t *testing.T) {
		_, err := manager.Get("non-existent")
		assert.ErrorIs(t, err, ErrSessionNotFound)
		assert.ErrorIs(t, err, service.ErrSessionNotFound)
	})
}

func TestManager_GetOrCreate(t *testing.T) {
	manager := newTestManager()
	rules := createTestRules()

	first, err := manager.GetOrCreate("new-session", "classic", rules)
	require.NoError(t, err)
	assert.Equal(t, "new-session", first.ID)

	second, err := manager.GetOrCreate("new-session", "classic", rules)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, manager.Count())
}

func TestManager_Delete(t *testing.T) {
	manager := newTestManager()
	session, err := manager.Create("delete-test", "classic", createTestRules())
	require.NoError(t, err)

	require.NoError(t, manager.Delete("delete-test"))
	_, err = manager.Get("delete-test")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// the board was closed with the session
	_, err = session.Board.ProposeMerge(engine.Coord{X: 0, Y: 0}, engine.Coord{X: 1, Y: 0})
	assert.ErrorIs(t, err, engine.ErrClosed)

	assert.ErrorIs(t, manager.Delete("non-existent"), ErrSessionNotFound)
	assert.ErrorIs(t, manager.DeleteFromMemory("non-existent"), ErrSessionNotFound)
}

func TestManager_List(t *testing.T) {
	manager := newTestManager()
	assert.Empty(t, manager.List())

	for i := 0; i < 3; i++ {
		_, err := manager.Create(fmt.Sprintf("list-%d", i), "classic", createTestRules())
		require.NoError(t, err)
	}

	ids := map[string]bool{}
	for _, s := range manager.List() {
		ids[s.ID] = true
	}
	assert.Equal(t, map[string]bool{"list-0": true, "list-1": true, "list-2": true}, ids)
}

func TestManager_CleanupExpired(t *testing.T) {
	manager := newTestManager()
	old, err := manager.Create("old", "classic", createTestRules())
	require.NoError(t, err)
	_, err = manager.Create("fresh", "classic", createTestRules())
	require.NoError(t, err)

	old.Touch(time.Now().Add(-2 * time.Hour))

	removed := manager.CleanupExpiredSessions(time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, manager.Count())

	_, err = manager.Get("old")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, engine.ErrClosed, func() error {
		_, err := old.Board.Restart()
		return err
	}())
}

func TestManager_UpdateLastAccessed(t *testing.T) {
	manager := newTestManager()
	session, err := manager.Create("access", "classic", createTestRules())
	require.NoError(t, err)

	before := session.LastAccessedAt()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, manager.UpdateLastAccessed("ACCESS"))
	assert.True(t, session.LastAccessedAt().After(before))

	assert.ErrorIs(t, manager.UpdateLastAccessed("missing"), ErrSessionNotFound)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	manager := newTestManager()
	rules := createTestRules()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("concurrent-%d", i)
			_, err := manager.Create(id, "classic", rules)
			assert.NoError(t, err)
			_, err = manager.Get(id)
			assert.NoError(t, err)
			assert.NoError(t, manager.UpdateLastAccessed(id))
			_ = manager.List()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, manager.Count())
}

func TestManager_SessionIsolation(t *testing.T) {
	manager := newTestManager()
	a, err := manager.Create("iso-a", "classic", createTestRules())
	require.NoError(t, err)
	b, err := manager.Create("iso-b", "classic", createTestRules())
	require.NoError(t, err)

	before := b.Board.State()
	hint, ok := a.Board.Hint()
	require.True(t, ok)
	_, err = a.Board.ProposeMerge(hint[0], hint[1])
	require.NoError(t, err)

	assert.Equal(t, before, b.Board.State())
	assert.NotEqual(t, a.Board.State().Moves, b.Board.State().Moves)
}

func TestManager_ListenerReceivesSessionEvents(t *testing.T) {
	var mu sync.Mutex
	got := map[string][]engine.EventType{}
	manager := NewManager(deterministic(), WithListener(func(id string, ev engine.Event) {
		mu.Lock()
		got[id] = append(got[id], ev.Type)
		mu.Unlock()
	}))

	session, err := manager.Create("events", "classic", createTestRules())
	require.NoError(t, err)
	hint, ok := session.Board.Hint()
	require.True(t, ok)
	_, err = session.Board.ProposeMerge(hint[0], hint[1])
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, got["events"], engine.EventScoreChanged)
	assert.Len(t, got, 1)
}

func TestManager_SessionIDGeneration(t *testing.T) {
	manager := newTestManager()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		session, err := manager.Create("", "classic", createTestRules())
		require.NoError(t, err)
		assert.False(t, seen[session.ID], "duplicate id %s", session.ID)
		seen[session.ID] = true
		for _, r := range session.ID {
			assert.True(t, strings.ContainsRune("0123456789abcdef", r))
		}
	}
}
