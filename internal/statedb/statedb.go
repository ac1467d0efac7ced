package statedb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is written to metadata by Migrate.
const SchemaVersion = 1

// ReasonHostExit closes sessions left open by a host that died mid-session.
const ReasonHostExit = "host_exit"

// ErrSessionNotFound is returned when an update names an unknown session.
var ErrSessionNotFound = errors.New("statedb: session not found")

// StateDB wraps a SQLite database holding recording session history.
// Safe for concurrent use; WAL mode + busy timeout let the CLI read while
// the host writes.
type StateDB struct {
	db *sql.DB
}

// SessionRow is one recording session.
type SessionRow struct {
	ID        string
	Command   string
	StartedAt time.Time
	EndedAt   time.Time // zero while the session is open
	MarkCount int
	EndReason string
}

// Open reports whether the session has not ended yet.
func (r *SessionRow) Open() bool {
	return r.EndedAt.IsZero()
}

// Duration is the session length, up to now for open sessions.
func (r *SessionRow) Duration(now time.Time) time.Duration {
	if r.Open() {
		return now.Sub(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Open opens (creating if needed) the history database at dbPath.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	pragmas := []struct{ name, stmt string }{
		{"wal mode", "PRAGMA journal_mode=WAL"},
		{"busy timeout", "PRAGMA busy_timeout=5000"},
		{"foreign keys", "PRAGMA foreign_keys=ON"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("statedb: %s: %w", p.name, err)
		}
	}

	return &StateDB{db: db}, nil
}

// Close folds the WAL back into the main file and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Migrate creates tables if they don't exist and records the schema version.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			command     TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			ended_at    INTEGER NOT NULL DEFAULT 0,
			mark_count  INTEGER NOT NULL DEFAULT 0,
			end_reason  TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("statedb: create sessions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS sessions_started ON sessions (started_at DESC)
	`); err != nil {
		return fmt.Errorf("statedb: create sessions index: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, strconv.Itoa(SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// --- Session history ---

// SessionStarted inserts an open session row.
func (s *StateDB) SessionStarted(id, command string, at time.Time) error {
	_, err := s.db.Exec(
		"INSERT INTO sessions (id, command, started_at) VALUES (?, ?, ?)",
		id, command, at.UnixMilli(),
	)
	return err
}

// SessionMarked stores the session's current mark count.
func (s *StateDB) SessionMarked(id string, marks int) error {
	return s.execOne("UPDATE sessions SET mark_count = ? WHERE id = ?", marks, id)
}

// SessionEnded closes a session row.
func (s *StateDB) SessionEnded(id string, at time.Time, marks int, reason string) error {
	return s.execOne(
		"UPDATE sessions SET ended_at = ?, mark_count = ?, end_reason = ? WHERE id = ?",
		at.UnixMilli(), marks, reason, id,
	)
}

func (s *StateDB) execOne(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// CloseDangling ends every session still open, as left by a host that
// exited without unloading. It returns how many rows were closed.
func (s *StateDB) CloseDangling(at time.Time) (int64, error) {
	res, err := s.db.Exec(
		"UPDATE sessions SET ended_at = ?, end_reason = ? WHERE ended_at = 0",
		at.UnixMilli(), ReasonHostExit,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListSessions returns the most recent sessions first. limit <= 0 means all.
func (s *StateDB) ListSessions(limit int) ([]*SessionRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, command, started_at, ended_at, mark_count, end_reason
		FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SessionRow
	for rows.Next() {
		r := &SessionRow{}
		var startedMs, endedMs int64
		if err := rows.Scan(&r.ID, &r.Command, &startedMs, &endedMs, &r.MarkCount, &r.EndReason); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(startedMs)
		if endedMs > 0 {
			r.EndedAt = time.UnixMilli(endedMs)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// GetSession loads one session by ID.
func (s *StateDB) GetSession(id string) (*SessionRow, error) {
	r := &SessionRow{}
	var startedMs, endedMs int64
	err := s.db.QueryRow(`
		SELECT id, command, started_at, ended_at, mark_count, end_reason
		FROM sessions WHERE id = ?
	`, id).Scan(&r.ID, &r.Command, &startedMs, &endedMs, &r.MarkCount, &r.EndReason)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.UnixMilli(startedMs)
	if endedMs > 0 {
		r.EndedAt = time.UnixMilli(endedMs)
	}
	return r, nil
}

func (s *StateDB) setMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// getMeta returns "" for a missing key.
func (s *StateDB) getMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Touch records when the host last started serving.
func (s *StateDB) Touch() error {
	return s.setMeta("last_serve_start", strconv.FormatInt(time.Now().UnixNano(), 10))
}

// LastServeStart returns the last Touch time, or zero.
func (s *StateDB) LastServeStart() (time.Time, error) {
	val, err := s.getMeta("last_serve_start")
	if err != nil || val == "" {
		return time.Time{}, err
	}
	ns, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, ns), nil
}
