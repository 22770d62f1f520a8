package session

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/taptapdesign-jimi/cube-crash/game/service"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLitePersistence stores sessions and finished runs in one SQLite database.
// Session rows carry the msgpack-encoded PersistedSessionData.
type SQLitePersistence struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewSQLitePersistence opens (creating if missing) the database at path and
// applies pending migrations
func NewSQLitePersistence(path string, logger *zap.Logger) (*SQLitePersistence, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	p := &SQLitePersistence{db: db, path: path, logger: logger}
	if err := p.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Close closes the database connection
func (p *SQLitePersistence) Close() error {
	return p.db.Close()
}

// Path returns the database file path
func (p *SQLitePersistence) Path() string {
	return p.path
}

// migrate applies the embedded migrations in lexical order, recording each
// in _migrations
func (p *SQLitePersistence) migrate() error {
	if _, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		var done int
		err := p.db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, f).Scan(&done)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query _migrations: %w", err)
		}

		sqlBytes, err := migrationFS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		tx, err := p.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, f); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", f, err)
		}
		p.logger.Info("migration applied", zap.String("migration", f))
	}
	return nil
}

// Save upserts the session row
func (p *SQLitePersistence) Save(session *service.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if !validID(session.ID) {
		return ErrInvalidSessionID
	}

	data := newPersistedSessionData(session)
	blob, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session data: %w", err)
	}

	_, err = p.db.Exec(`
		INSERT INTO sessions (id, config_name, run_id, created_at, last_accessed_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config_name = excluded.config_name,
			run_id = excluded.run_id,
			last_accessed_at = excluded.last_accessed_at,
			data = excluded.data`,
		data.ID, data.ConfigName, data.RunID, data.CreatedAt.UTC(), data.LastAccessedAt.UTC(), blob,
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", data.ID, err)
	}
	return nil
}

// Load decodes the stored session row
func (p *SQLitePersistence) Load(id string) (*PersistedSessionData, error) {
	var blob []byte
	err := p.db.QueryRow(`SELECT data FROM sessions WHERE id=?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var data PersistedSessionData
	if err := msgpack.Unmarshal(blob, &data); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	if data.ID == "" {
		data.ID = id
	}
	return &data, nil
}

// Delete removes the session row
func (p *SQLitePersistence) Delete(id string) error {
	res, err := p.db.Exec(`DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListAll returns all persisted session IDs, most recently used first
func (p *SQLitePersistence) ListAll() ([]string, error) {
	rows, err := p.db.Query(`SELECT id FROM sessions ORDER BY last_accessed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Exists checks if a session row exists
func (p *SQLitePersistence) Exists(id string) bool {
	var one int
	err := p.db.QueryRow(`SELECT 1 FROM sessions WHERE id=?`, id).Scan(&one)
	return err == nil
}

// PurgeBefore deletes sessions not accessed since cutoff and returns how many were removed
func (p *SQLitePersistence) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_accessed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// Record stores a finished run. A run is stored at most once; repeated
// records for the same run ID are ignored.
func (p *SQLitePersistence) Record(ctx context.Context, entry service.ScoreEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("record result: empty run id")
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO results (run_id, session_id, rules_name, score, level, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.SessionID, entry.RulesName, int64(entry.Score), int64(entry.Level), entry.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record result %s: %w", entry.RunID, err)
	}
	return nil
}

// Top returns the best runs by score, for one rule set or all when rulesName is empty
func (p *SQLitePersistence) Top(ctx context.Context, rulesName string, limit int) ([]service.ScoreEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT run_id, session_id, rules_name, score, level, ended_at
		FROM results
		WHERE (? = '' OR rules_name = ?)
		ORDER BY score DESC, level DESC, ended_at ASC
		LIMIT ?`, rulesName, rulesName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]service.ScoreEntry, 0, limit)
	for rows.Next() {
		var e service.ScoreEntry
		var score, level int64
		if err := rows.Scan(&e.RunID, &e.SessionID, &e.RulesName, &score, &level, &e.EndedAt); err != nil {
			return nil, err
		}
		e.Score, e.Level = uint64(score), uint32(level)
		out = append(out, e)
	}
	return out, rows.Err()
}
