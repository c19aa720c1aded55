// Package session persists per-thread resumable agent session handles.
package session

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Handle names the four independently resumable sub-conversations a thread
// can carry. Each is optional: a thread may have a main conversation without
// any retrieval history, or vice versa.
type Handle string

const (
	HandleMain    Handle = "main_session_id"
	HandlePlanner Handle = "planner_session_id"
	HandleFilter  Handle = "filter_session_id"
	HandleUpdater Handle = "updater_session_id"
)

// Ref is an immutable snapshot of a thread's session handles, read at turn
// start and passed into sub-calls. Sub-calls return updated copies; they
// never mutate shared session state.
type Ref struct {
	ThreadID string
	Main     string
	Planner  string
	Filter   string
	Updater  string
}

// Store is the durable session table, one row per thread.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the session database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		thread_id TEXT PRIMARY KEY,
		main_session_id TEXT,
		planner_session_id TEXT,
		filter_session_id TEXT,
		updater_session_id TEXT,
		cost_usd REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply session schema: %w", err)
	}
	// Best-effort migration for databases created before cost tracking.
	_, _ = db.Exec(`ALTER TABLE sessions ADD COLUMN cost_usd REAL NOT NULL DEFAULT 0`)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS seen_updates (
		update_id INTEGER PRIMARY KEY,
		seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply seen_updates schema: %w", err)
	}
	// Sweep idempotency records older than a day on open.
	_, _ = db.Exec(`DELETE FROM seen_updates WHERE seen_at < datetime('now', '-1 day')`)

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the session snapshot for a thread. A thread with no row yields
// an empty Ref, not an error.
func (s *Store) Get(threadID string) (Ref, error) {
	ref := Ref{ThreadID: threadID}
	var main, planner, filter, updater sql.NullString
	err := s.db.QueryRow(
		`SELECT main_session_id, planner_session_id, filter_session_id, updater_session_id
		 FROM sessions WHERE thread_id = ?`, threadID,
	).Scan(&main, &planner, &filter, &updater)
	if err == sql.ErrNoRows {
		return ref, nil
	}
	if err != nil {
		return ref, fmt.Errorf("load session %s: %w", threadID, err)
	}
	ref.Main = main.String
	ref.Planner = planner.String
	ref.Filter = filter.String
	ref.Updater = updater.String
	return ref, nil
}

// SetHandle upserts a single session handle for a thread. Other handle
// columns are left untouched so concurrent sub-call updates never clobber
// each other.
func (s *Store) SetHandle(threadID string, handle Handle, value string) error {
	switch handle {
	case HandleMain, HandlePlanner, HandleFilter, HandleUpdater:
	default:
		return fmt.Errorf("unknown session handle %q", handle)
	}
	query := fmt.Sprintf(
		`INSERT INTO sessions (thread_id, %[1]s) VALUES (?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
			%[1]s = excluded.%[1]s,
			last_used_at = datetime('now')`, string(handle))
	if _, err := s.db.Exec(query, threadID, value); err != nil {
		return fmt.Errorf("set %s for thread %s: %w", handle, threadID, err)
	}
	return nil
}

// Delete removes a thread's session row. Returns whether a row existed.
func (s *Store) Delete(threadID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE thread_id = ?`, threadID)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", threadID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// AddCost accumulates agent spend for a thread.
func (s *Store) AddCost(threadID string, usd float64) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (thread_id, cost_usd) VALUES (?, ?)
		 ON CONFLICT(thread_id) DO UPDATE SET
			cost_usd = cost_usd + excluded.cost_usd,
			last_used_at = datetime('now')`, threadID, usd)
	if err != nil {
		return fmt.Errorf("add cost for thread %s: %w", threadID, err)
	}
	return nil
}

// Cost returns the accumulated spend for a thread.
func (s *Store) Cost(threadID string) (float64, error) {
	var usd float64
	err := s.db.QueryRow(`SELECT cost_usd FROM sessions WHERE thread_id = ?`, threadID).Scan(&usd)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load cost for thread %s: %w", threadID, err)
	}
	return usd, nil
}

// MarkSeen records an inbound update id for idempotent suppression.
// It returns true if the id was new.
func (s *Store) MarkSeen(updateID int64) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO seen_updates (update_id) VALUES (?)`, updateID)
	if err != nil {
		return false, fmt.Errorf("mark update %d seen: %w", updateID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
