package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taptapdesign-jimi/cube-crash/game/engine"
)

const (
	defaultHistoryLimit     = 20
	maxHistoryLimit         = 100
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	scores   ScoreRecorder
	logger   *zap.Logger
	mu       sync.RWMutex
}

// NewGameService creates a new game service instance. scores may be nil, in
// which case finished runs are not recorded.
func NewGameService(sessions SessionManager, configs ConfigManager, scores ScoreRecorder, logger *zap.Logger) GameService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		scores:   scores,
		logger:   logger,
	}
}

// getConfigID returns the config_id for a given rule set display name
func (s *gameServiceImpl) getConfigID(displayName string) string {
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == displayName {
				return cfg.ConfigID
			}
		}
	}
	if displayName == "" {
		return "default"
	}
	return displayName
}

func (s *gameServiceImpl) sessionInfo(sess *Session) *SessionInfo {
	info := &SessionInfo{
		ID:             sess.ID,
		RunID:          sess.RunID(),
		ConfigName:     sess.ConfigName,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt(),
		GameState:      sess.Board.State(),
		Rules:          sess.Rules,
	}
	if sess.RecoveredFrom != nil {
		info.Recovered = sess.RecoveredFrom.Error()
	}
	return info
}

func (s *gameServiceImpl) getSession(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return sess, nil
}

// save persists the session, logging failures
func (s *gameServiceImpl) save(sessionID string) {
	if err := s.sessions.Save(sessionID); err != nil {
		s.logger.Warn("failed to persist session", zap.String("session", sessionID), zap.Error(err))
	}
}

// CreateSession creates a new game session
func (s *gameServiceImpl) CreateSession(ctx context.Context, configName string) (*SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rules *engine.Rules
	var err error
	if configName != "" {
		rules, err = s.configs.LoadConfig(configName)
		if err != nil {
			if errors.Is(err, ErrConfigNotFound) {
				availableConfigs, listErr := s.configs.ListConfigs()
				if listErr == nil && len(availableConfigs) > 0 {
					var configIDs []string
					for _, cfg := range availableConfigs {
						configIDs = append(configIDs, cfg.ConfigID)
					}
					return nil, fmt.Errorf("%w: config '%s', available configs: %v", ErrConfigNotFound, configName, configIDs)
				}
				return nil, fmt.Errorf("%w: config '%s'", ErrConfigNotFound, configName)
			}
			return nil, fmt.Errorf("failed to load config %s: %w", configName, err)
		}
	} else {
		rules = s.configs.GetDefault()
		configName = s.getConfigID(rules.Name)
	}

	sess, err := s.sessions.Create("", configName, rules)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("session created",
		zap.String("session", sess.ID),
		zap.String("config", configName),
		zap.String("run", sess.RunID()))
	return s.sessionInfo(sess), nil
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	_ = s.sessions.UpdateLastAccessed(sessionID)
	return s.sessionInfo(sess), nil
}

// ListSessions returns all active sessions
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sessions.Delete(sessionID); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}
	s.logger.Info("session deleted", zap.String("session", sessionID))
	return nil
}

// Merge proposes merging the tile at src into the tile at dst. The returned
// result is non-nil whenever the session exists, also for rejected proposals.
func (s *gameServiceImpl) Merge(ctx context.Context, sessionID string, src, dst engine.Coord) (*MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	_ = s.sessions.UpdateLastAccessed(sessionID)

	res, err := sess.Board.ProposeMerge(src, dst)
	state := sess.Board.State()
	result := &MergeResult{
		Outcome:   res.Outcome,
		Events:    res.Events,
		GameState: state,
		Message:   mergeMessage(res),
	}
	if result.Events == nil {
		result.Events = []engine.Event{}
	}
	if err != nil {
		return result, err
	}
	result.Success = true

	sess.RecordMerge(MergeRecord{
		Src:        src,
		Dst:        dst,
		Kind:       res.Outcome.Kind,
		ScoreDelta: res.Outcome.ScoreDelta,
		Score:      state.Score,
		Moves:      state.Moves,
		Level:      state.Level,
		Combo:      state.Combo,
		Reopened:   len(res.Outcome.Reopened),
		Timestamp:  time.Now(),
	})

	s.recordResult(ctx, sess, state)
	s.save(sessionID)
	return result, nil
}

// recordResult stores the final score once per run that ended in game over
func (s *gameServiceImpl) recordResult(ctx context.Context, sess *Session, state *engine.State) {
	if s.scores == nil || state.Phase != engine.PhaseEnding || state.End != engine.EndGameOver {
		return
	}
	if !sess.MarkRecorded() {
		return
	}

	entry := ScoreEntry{
		RunID:     sess.RunID(),
		SessionID: sess.ID,
		RulesName: sess.Rules.Name,
		Score:     state.Score,
		Level:     state.Level,
		EndedAt:   time.Now().UTC(),
	}
	if err := s.scores.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record score",
			zap.String("session", sess.ID),
			zap.String("run", entry.RunID),
			zap.Error(err))
		return
	}
	s.logger.Info("run recorded",
		zap.String("session", sess.ID),
		zap.String("run", entry.RunID),
		zap.Uint64("score", entry.Score),
		zap.Uint32("level", entry.Level))
}

// NextLevel deals the next board after a cleared level
func (s *gameServiceImpl) NextLevel(ctx context.Context, sessionID string) (*engine.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	_ = s.sessions.UpdateLastAccessed(sessionID)

	state, err := sess.Board.NextLevel()
	if err != nil {
		return nil, err
	}
	s.recordResult(ctx, sess, state)
	s.save(sessionID)
	return state, nil
}

// Restart abandons the current run and starts a new one
func (s *gameServiceImpl) Restart(ctx context.Context, sessionID string) (*engine.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	_ = s.sessions.UpdateLastAccessed(sessionID)

	state, err := sess.Board.Restart()
	if err != nil {
		return nil, err
	}
	runID := sess.NewRun()
	s.logger.Info("run restarted", zap.String("session", sessionID), zap.String("run", runID))

	s.recordResult(ctx, sess, state)
	s.save(sessionID)
	return state, nil
}

// GetGameState retrieves the current board state
func (s *gameServiceImpl) GetGameState(ctx context.Context, sessionID string) (*engine.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	_ = s.sessions.UpdateLastAccessed(sessionID)
	return sess.Board.State(), nil
}

// GetMergeHistory retrieves paginated merge history
func (s *gameServiceImpl) GetMergeHistory(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	history := sess.MergeHistory()
	total := len(history)

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultHistoryLimit
	}
	if opts.Limit > maxHistoryLimit {
		opts.Limit = maxHistoryLimit
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := min(start+opts.Limit, total)

	merges := []MergeRecord{}
	if start < total {
		if opts.Order == "desc" {
			// most recent first
			for i := total - 1 - start; i >= total-end; i-- {
				merges = append(merges, history[i])
			}
		} else {
			merges = append(merges, history[start:end]...)
		}
	}

	return &HistoryResponse{
		Merges:      merges,
		TotalMerges: total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// ListConfigs returns all available rule sets
func (s *gameServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific rule set
func (s *gameServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.Rules, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig saves a rule set
func (s *gameServiceImpl) SaveConfig(ctx context.Context, configName string, rules *engine.Rules) error {
	return s.configs.SaveConfig(configName, rules)
}

// Leaderboard returns the best recorded runs, optionally for one rule set
func (s *gameServiceImpl) Leaderboard(ctx context.Context, rulesName string, limit int) ([]ScoreEntry, error) {
	if s.scores == nil {
		return []ScoreEntry{}, nil
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	entries, err := s.scores.Top(ctx, rulesName, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	if entries == nil {
		entries = []ScoreEntry{}
	}
	return entries, nil
}

// mergeMessage describes a merge result for humans
func mergeMessage(res *engine.MergeResult) string {
	out := res.Outcome
	var msg string
	switch out.Kind {
	case engine.OutcomeRejected:
		return "Merge rejected: " + out.Reason
	case engine.OutcomeSmallMerge:
		msg = fmt.Sprintf("Merged into %d (depth %d)", out.NewValue, out.NewDepth)
	case engine.OutcomeCrack:
		msg = fmt.Sprintf("Crack! +%d (x%d), %d cells reopened", out.ScoreDelta, out.Multiplier, len(out.Reopened))
		if out.GuaranteedWild {
			msg += ", wild guaranteed"
		}
	}

	switch res.End {
	case engine.EndLevelComplete:
		msg += ". Board clean, level complete!"
	case engine.EndGameOver:
		msg += ". No merges left, game over."
	}
	return msg
}
