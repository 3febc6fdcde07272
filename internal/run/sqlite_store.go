package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is an optional durable Store backing, selected by config in
// place of the default ring-buffered MemoryStore when a caller wants the
// full run history (not just the newest MaxRuns) queryable without
// re-parsing the JSONL log. It satisfies the same Store interface, so
// callers never branch on which backing is in use; subscribe/publish are
// delegated to an in-memory broker since broadcast is a process-local,
// at-most-once-per-subscriber concern regardless of durable backing.
type SQLiteStore struct {
	db *sql.DB

	subMu sync.Mutex
	subs  map[string]map[chan Event]struct{}
}

// OpenSQLiteStore opens (creating if necessary) a sqlite database at path
// and ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite run store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY under concurrent access

	if _, err := db.Exec(runSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite run store: %w", err)
	}
	return &SQLiteStore{
		db:   db,
		subs: make(map[string]map[chan Event]struct{}),
	}, nil
}

const runSchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	session_key   TEXT NOT NULL,
	status        TEXT NOT NULL,
	agent_id      TEXT,
	started_at    TEXT NOT NULL,
	run_json      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_session_key ON runs(session_key);
CREATE INDEX IF NOT EXISTS idx_runs_agent_id ON runs(agent_id);
`

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) upsert(ctx context.Context, r *Run) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, session_key, status, agent_id, started_at, run_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_key=excluded.session_key, status=excluded.status, agent_id=excluded.agent_id,
			started_at=excluded.started_at, run_json=excluded.run_json`,
		r.ID, r.SessionKey, string(r.Status), r.AgentID, formatTime(r.StartedAt), string(data))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// CreateRun inserts r.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *Run) error {
	if r == nil {
		return fmt.Errorf("run store: nil run")
	}
	return s.upsert(ctx, r)
}

// UpdateRun replaces the stored state for r.ID.
func (s *SQLiteStore) UpdateRun(ctx context.Context, r *Run) error {
	if r == nil {
		return fmt.Errorf("run store: nil run")
	}
	return s.upsert(ctx, r)
}

// GetRun returns the run with the given id, or nil if not found.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT run_json FROM runs WHERE id = ?`, id)
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var r Run
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &r, nil
}

// ListRuns returns runs newest-first, optionally filtered, with
// limit/offset pagination.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter ListFilter) ([]*Run, error) {
	query := `SELECT run_json FROM runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.SessionKey != "" {
		query += ` AND session_key = ?`
		args = append(args, filter.SessionKey)
	}
	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	query += ` ORDER BY started_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Run
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal run: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// Subscribe returns a buffered channel of Events for runID. Broadcast is
// process-local even for the durable backing: a restart loses only
// in-flight subscriptions, never run state.
func (s *SQLiteStore) Subscribe(runID string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	s.subMu.Lock()
	set, ok := s.subs[runID]
	if !ok {
		set = make(map[chan Event]struct{})
		s.subs[runID] = set
	}
	set[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if set, ok := s.subs[runID]; ok {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(s.subs, runID)
				}
			}
		})
	}
	return ch, unsubscribe
}

// Publish delivers ev to every current subscriber of runID, dropping it
// for any subscriber whose channel is full.
func (s *SQLiteStore) Publish(runID string, ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs[runID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
