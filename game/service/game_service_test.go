package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
	"github.com/taptapdesign-jimi/cube-crash/game/service"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// MockSessionManager implements service.SessionManager for testing. When
// layout is set, boards are restored from it instead of dealt.
type MockSessionManager struct {
	sessions map[string]*service.Session
	layout   [][]engine.Tile
	moves    uint32
	saves    int
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*service.Session),
	}
}

func (m *MockSessionManager) newBoard(rules *engine.Rules) (*engine.Board, error) {
	opts := []engine.Option{
		engine.WithScheduler(engine.NewManualScheduler(epoch)),
		engine.WithRand(engine.NewSeededRand(3)),
	}
	if m.layout == nil {
		return engine.NewBoard(rules, opts...)
	}
	moves := m.moves
	if moves == 0 {
		moves = uint32(rules.MovesPerBoard)
	}
	return engine.Restore(rules, &engine.Snapshot{
		Rows:  rules.Rows,
		Cols:  rules.Cols,
		Grid:  m.layout,
		Moves: moves,
		Level: 1,
	}, opts...)
}

func (m *MockSessionManager) Create(id, configName string, rules *engine.Rules) (*service.Session, error) {
	// Generate ID if empty (mimics real session manager behavior)
	if id == "" {
		id = fmt.Sprintf("test_%d", len(m.sessions)+1)
	}
	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}

	board, err := m.newBoard(rules)
	if err != nil {
		return nil, err
	}
	sess := service.NewSession(id, configName, board, rules)
	m.sessions[id] = sess
	return sess, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	sess, exists := m.sessions[id]
	if !exists {
		return nil, service.ErrSessionNotFound
	}
	return sess, nil
}

func (m *MockSessionManager) GetOrCreate(id, configName string, rules *engine.Rules) (*service.Session, error) {
	if sess, exists := m.sessions[id]; exists {
		return sess, nil
	}
	return m.Create(id, configName, rules)
}

func (m *MockSessionManager) List() []*service.Session {
	result := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, sess)
	}
	return result
}

func (m *MockSessionManager) Delete(id string) error {
	sess, exists := m.sessions[id]
	if !exists {
		return service.ErrSessionNotFound
	}
	sess.Board.Close()
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	if sess, exists := m.sessions[id]; exists {
		sess.Touch(time.Now())
		return nil
	}
	return service.ErrSessionNotFound
}

func (m *MockSessionManager) Save(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return service.ErrSessionNotFound
	}
	m.saves++
	return nil
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	configs map[string]*engine.Rules
}

func testRules() *engine.Rules {
	rules := engine.DefaultRules()
	rules.Name = "test"
	rules.Description = "Test rules"
	rules.Rows, rules.Cols = 3, 3
	rules.InitialTiles = 4
	return rules
}

func NewMockConfigManager() *MockConfigManager {
	return &MockConfigManager{
		configs: map[string]*engine.Rules{
			"test": testRules(),
		},
	}
}

func (m *MockConfigManager) LoadConfig(name string) (*engine.Rules, error) {
	rules, exists := m.configs[name]
	if !exists {
		return nil, service.ErrConfigNotFound
	}
	return rules.Clone(), nil
}

func (m *MockConfigManager) ListConfigs() ([]*service.ConfigInfo, error) {
	result := make([]*service.ConfigInfo, 0, len(m.configs))
	for id, rules := range m.configs {
		result = append(result, &service.ConfigInfo{
			Filename:      id + ".yaml",
			ConfigID:      id,
			Name:          rules.Name,
			Description:   rules.Description,
			Rows:          rules.Rows,
			Cols:          rules.Cols,
			MovesPerBoard: rules.MovesPerBoard,
		})
	}
	return result, nil
}

func (m *MockConfigManager) GetDefault() *engine.Rules {
	return m.configs["test"].Clone()
}

func (m *MockConfigManager) SaveConfig(name string, rules *engine.Rules) error {
	if err := engine.ValidateRules(rules); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidConfig, err)
	}
	m.configs[name] = rules.Clone()
	return nil
}

// MockScores implements service.ScoreRecorder in memory
type MockScores struct {
	mu      sync.Mutex
	entries []service.ScoreEntry
	err     error
}

func (m *MockScores) Record(ctx context.Context, entry service.ScoreEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockScores) Top(ctx context.Context, rulesName string, limit int) ([]service.ScoreEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []service.ScoreEntry
	for _, e := range m.entries {
		if rulesName == "" || e.RulesName == rulesName {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func at(x, y int) engine.Coord {
	return engine.Coord{X: x, Y: y}
}

func tile(v int) engine.Tile {
	return engine.NewTile(v)
}

var locked = engine.LockedTile()

type fixture struct {
	svc      service.GameService
	sessions *MockSessionManager
	configs  *MockConfigManager
	scores   *MockScores
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions: NewMockSessionManager(),
		configs:  NewMockConfigManager(),
		scores:   &MockScores{},
	}
	f.svc = service.NewGameService(f.sessions, f.configs, f.scores, nil)
	return f
}

func (f *fixture) create(t *testing.T, layout [][]engine.Tile, moves uint32) *service.SessionInfo {
	t.Helper()
	f.sessions.layout = layout
	f.sessions.moves = moves
	info, err := f.svc.CreateSession(context.Background(), "test")
	require.NoError(t, err)
	return info
}

func TestGameService_CreateSession(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		configName string
		wantErr    error
	}{
		{name: "create with default config", configName: ""},
		{name: "create with specific config", configName: "test"},
		{name: "create with invalid config", configName: "nonexistent", wantErr: service.ErrConfigNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			info, err := f.svc.CreateSession(ctx, tt.configName)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", info.ConfigName)
			assert.NotEmpty(t, info.RunID)
			assert.Equal(t, engine.PhaseIdle, info.GameState.Phase)
			assert.Equal(t, uint32(1), info.GameState.Level)
			assert.Equal(t, 3, info.Rules.Rows)
		})
	}

	t.Run("cancelled context", func(t *testing.T) {
		f := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.svc.CreateSession(cctx, "test")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGameService_Merge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	info := f.create(t, [][]engine.Tile{
		{tile(1), tile(2), tile(1)},
		{locked, locked, locked},
		{locked, locked, locked},
	}, 0)

	tests := []struct {
		name      string
		sessionID string
		src, dst  engine.Coord
		wantErr   error
		success   bool
	}{
		{name: "invalid session", sessionID: "nonexistent", src: at(0, 0), dst: at(1, 0), wantErr: service.ErrSessionNotFound},
		{name: "same tile", sessionID: info.ID, src: at(0, 0), dst: at(0, 0), wantErr: engine.ErrInvalidProposal},
		{name: "locked destination", sessionID: info.ID, src: at(0, 0), dst: at(0, 1), wantErr: engine.ErrInvalidProposal},
		{name: "small merge", sessionID: info.ID, src: at(0, 0), dst: at(1, 0), success: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.svc.Merge(ctx, tt.sessionID, tt.src, tt.dst)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				if result != nil {
					assert.False(t, result.Success)
					assert.Equal(t, engine.OutcomeRejected, result.Outcome.Kind)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.success, result.Success)
		})
	}

	state, err := f.svc.GetGameState(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, state.Grid[0][1].Value)
	assert.True(t, state.Grid[0][0].Locked)
	assert.Equal(t, uint64(3), state.Score)
	assert.Equal(t, uint32(29), state.Moves)
	assert.Equal(t, engine.PhaseIdle, state.Phase)

	history, err := f.svc.GetMergeHistory(ctx, info.ID, service.HistoryOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, history.TotalMerges, "rejected proposals are not recorded")
	assert.Equal(t, engine.OutcomeSmallMerge, history.Merges[0].Kind)
	assert.Equal(t, uint64(3), history.Merges[0].Score)
	assert.Equal(t, 1, f.sessions.saves)
}

func TestGameService_CrackClearsLevel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	info := f.create(t, [][]engine.Tile{
		{tile(2), tile(4), locked},
		{locked, locked, locked},
		{locked, locked, locked},
	}, 1)

	result, err := f.svc.Merge(ctx, info.ID, at(0, 0), at(1, 0))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, engine.OutcomeCrack, result.Outcome.Kind)
	assert.Equal(t, engine.PhaseEnding, result.GameState.Phase)
	assert.Equal(t, engine.EndLevelComplete, result.GameState.End)
	assert.Contains(t, result.Message, "level complete")

	_, err = f.svc.Merge(ctx, info.ID, at(0, 0), at(1, 0))
	assert.ErrorIs(t, err, engine.ErrEnding)

	state, err := f.svc.NextLevel(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), state.Level)
	assert.Equal(t, uint32(30), state.Moves)
	assert.Empty(t, f.scores.entries, "level completion is not a finished run")

	_, err = f.svc.NextLevel(ctx, info.ID)
	assert.ErrorIs(t, err, engine.ErrNotLevelComplete)
}

func TestGameService_GameOverRecordsScoreOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	info := f.create(t, [][]engine.Tile{
		{tile(1), tile(2), locked},
		{locked, locked, locked},
		{locked, locked, tile(5)},
	}, 0)

	result, err := f.svc.Merge(ctx, info.ID, at(0, 0), at(1, 0))
	require.NoError(t, err)
	assert.Equal(t, engine.EndGameOver, result.GameState.End)
	assert.Contains(t, result.Message, "game over")

	require.Len(t, f.scores.entries, 1)
	entry := f.scores.entries[0]
	assert.Equal(t, info.RunID, entry.RunID)
	assert.Equal(t, info.ID, entry.SessionID)
	assert.Equal(t, "test", entry.RulesName)
	assert.Equal(t, uint64(3), entry.Score)

	top, err := f.svc.Leaderboard(ctx, "test", 0)
	require.NoError(t, err)
	require.Len(t, top, 1)

	// a new run gets a new id
	f.sessions.layout = nil
	state, err := f.svc.Restart(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), state.Level)
	assert.Zero(t, state.Score)

	again, err := f.svc.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.NotEqual(t, info.RunID, again.RunID)

	history, err := f.svc.GetMergeHistory(ctx, info.ID, service.HistoryOptions{})
	require.NoError(t, err)
	assert.Zero(t, history.TotalMerges, "history belongs to the run")
}

func TestGameService_RecordFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.scores.err = errors.New("disk full")
	info := f.create(t, [][]engine.Tile{
		{tile(1), tile(2), locked},
		{locked, locked, locked},
		{locked, locked, tile(5)},
	}, 0)

	result, err := f.svc.Merge(ctx, info.ID, at(0, 0), at(1, 0))
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestGameService_GetMergeHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	info := f.create(t, nil, 0)

	sess, err := f.sessions.Get(info.ID)
	require.NoError(t, err)
	for i := 0; i < 45; i++ {
		sess.RecordMerge(service.MergeRecord{Kind: engine.OutcomeSmallMerge, ScoreDelta: uint64(i)})
	}

	tests := []struct {
		name      string
		opts      service.HistoryOptions
		wantLen   int
		wantFirst int
		hasNext   bool
		hasPrev   bool
	}{
		{name: "defaults newest first", opts: service.HistoryOptions{}, wantLen: 20, wantFirst: 45, hasNext: true},
		{name: "ascending second page", opts: service.HistoryOptions{Page: 2, Limit: 20, Order: "asc"}, wantLen: 20, wantFirst: 21, hasNext: true, hasPrev: true},
		{name: "last page", opts: service.HistoryOptions{Page: 3, Limit: 20, Order: "desc"}, wantLen: 5, wantFirst: 5, hasPrev: true},
		{name: "past the end", opts: service.HistoryOptions{Page: 9, Limit: 20}, wantLen: 0, hasPrev: true},
		{name: "limit is capped", opts: service.HistoryOptions{Limit: 1000, Order: "asc"}, wantLen: 45, wantFirst: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.svc.GetMergeHistory(ctx, info.ID, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, 45, resp.TotalMerges)
			require.Len(t, resp.Merges, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, resp.Merges[0].Seq)
			}
			assert.Equal(t, tt.hasNext, resp.HasNext)
			assert.Equal(t, tt.hasPrev, resp.HasPrevious)
		})
	}

	_, err = f.svc.GetMergeHistory(ctx, "missing", service.HistoryOptions{})
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}

func TestSession_HistoryIsCapped(t *testing.T) {
	sess := service.NewSession("abcd", "test", nil, testRules())
	for i := 0; i < engine.MaxMergeHistory+25; i++ {
		sess.RecordMerge(service.MergeRecord{})
	}
	history := sess.MergeHistory()
	require.Len(t, history, engine.MaxMergeHistory)
	assert.Equal(t, 26, history[0].Seq)
	assert.Equal(t, engine.MaxMergeHistory+25, history[len(history)-1].Seq)

	assert.True(t, sess.MarkRecorded())
	assert.False(t, sess.MarkRecorded())
	sess.NewRun()
	assert.False(t, sess.Recorded())
	assert.Empty(t, sess.MergeHistory())
}

func TestGameService_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.CreateSession(ctx, "test")
	require.NoError(t, err)
	_, err = f.svc.CreateSession(ctx, "")
	require.NoError(t, err)

	list, err := f.svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, f.svc.DeleteSession(ctx, first.ID))
	_, err = f.svc.GetSession(ctx, first.ID)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
	assert.ErrorIs(t, f.svc.DeleteSession(ctx, first.ID), service.ErrSessionNotFound)
}

func TestGameService_Configs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	configs, err := f.svc.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "test", configs[0].ConfigID)

	rules := testRules()
	rules.Name = "big"
	rules.Rows, rules.Cols = 6, 6
	require.NoError(t, f.svc.SaveConfig(ctx, "big", rules))

	loaded, err := f.svc.LoadConfig(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.Rows)

	rules.Rows = 0
	assert.ErrorIs(t, f.svc.SaveConfig(ctx, "broken", rules), service.ErrInvalidConfig)
}

func TestGameService_LeaderboardWithoutRecorder(t *testing.T) {
	svc := service.NewGameService(NewMockSessionManager(), NewMockConfigManager(), nil, nil)
	entries, err := svc.Leaderboard(context.Background(), "", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}
