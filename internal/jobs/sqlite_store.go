package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/serialagent/gateway/pkg/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore is an optional durable Store backing, selected by config in
// place of the default MemoryStore when a caller wants job state to survive
// a restart without running a separate database service. It satisfies the
// same Store interface as MemoryStore, so callers never branch on which
// backing is in use.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a sqlite database at path
// and ensures its schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY under concurrent access

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	tool_name    TEXT NOT NULL,
	tool_call_id TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	started_at   TEXT,
	finished_at  TEXT,
	result_json  TEXT,
	error        TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create stores a job.
func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return nil
	}
	resultJSON, err := marshalResult(job.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, tool_name, tool_call_id, status, created_at, started_at, finished_at, result_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tool_name=excluded.tool_name, tool_call_id=excluded.tool_call_id, status=excluded.status,
			created_at=excluded.created_at, started_at=excluded.started_at, finished_at=excluded.finished_at,
			result_json=excluded.result_json, error=excluded.error`,
		job.ID, job.ToolName, job.ToolCallID, string(job.Status),
		formatTime(job.CreatedAt), formatTime(job.StartedAt), formatTime(job.FinishedAt),
		resultJSON, job.Error)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update updates a job record.
func (s *SQLiteStore) Update(ctx context.Context, job *Job) error {
	return s.Create(ctx, job)
}

// Get returns a job by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tool_name, tool_call_id, status, created_at, started_at, finished_at, result_json, error
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// List returns jobs ordered by creation time, most recent first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Job, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_name, tool_call_id, status, created_at, started_at, finished_at, result_json, error
		FROM jobs ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Prune removes jobs older than the given duration.
func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// Cancel marks a running job as failed with a cancellation error.
func (s *SQLiteStore) Cancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(StatusFailed), "cancelled", formatTime(time.Now()), id, string(StatusQueued), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s not found or already finished", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status, createdAt string
	var startedAt, finishedAt, resultJSON, jobErr sql.NullString
	if err := row.Scan(&job.ID, &job.ToolName, &job.ToolCallID, &status, &createdAt,
		&startedAt, &finishedAt, &resultJSON, &jobErr); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.CreatedAt = parseTime(createdAt)
	job.StartedAt = parseTime(startedAt.String)
	job.FinishedAt = parseTime(finishedAt.String)
	job.Error = jobErr.String
	if resultJSON.Valid && resultJSON.String != "" {
		result, err := unmarshalResult(resultJSON.String)
		if err != nil {
			return nil, err
		}
		job.Result = result
	}
	return &job, nil
}

func marshalResult(result *models.ToolResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return string(data), nil
}

func unmarshalResult(data string) (*models.ToolResult, error) {
	var result models.ToolResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("unmarshal tool result: %w", err)
	}
	return &result, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
