package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/serialagent/gateway/pkg/models"
)

func openTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.db")
	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreCRUD(t *testing.T) {
	store := openTestSQLiteStore(t)
	job := &Job{
		ID:         "job-1",
		ToolName:   "tool",
		ToolCallID: "call-1",
		Status:     StatusQueued,
		CreatedAt:  time.Now(),
		Result:     &models.ToolResult{ToolCallID: "call-1", Content: "ok"},
	}

	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != "job-1" {
		t.Fatalf("expected job, got %+v", got)
	}
	if got.Result == nil || got.Result.Content != "ok" {
		t.Fatalf("expected result content, got %+v", got.Result)
	}

	job.Status = StatusSucceeded
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.Get(context.Background(), "job-1")
	if got.Status != StatusSucceeded {
		t.Fatalf("expected status %q, got %q", StatusSucceeded, got.Status)
	}
}

func TestSQLiteStoreGetMissing(t *testing.T) {
	store := openTestSQLiteStore(t)
	got, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing job, got %+v", got)
	}
}

func TestSQLiteStoreList(t *testing.T) {
	store := openTestSQLiteStore(t)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		job := &Job{
			ID:        id,
			ToolName:  "tool",
			Status:    StatusQueued,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Create(context.Background(), job); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	jobs, err := store.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	// most recent first
	if jobs[0].ID != "c" {
		t.Errorf("expected most recent job first, got %s", jobs[0].ID)
	}

	limited, err := store.List(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 job, got %d", len(limited))
	}
}

func TestSQLiteStorePrune(t *testing.T) {
	store := openTestSQLiteStore(t)
	old := &Job{ID: "old", ToolName: "t", Status: StatusSucceeded, CreatedAt: time.Now().Add(-48 * time.Hour)}
	recent := &Job{ID: "recent", ToolName: "t", Status: StatusSucceeded, CreatedAt: time.Now()}
	if err := store.Create(context.Background(), old); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if err := store.Create(context.Background(), recent); err != nil {
		t.Fatalf("create recent: %v", err)
	}

	pruned, err := store.Prune(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned job, got %d", pruned)
	}

	if got, _ := store.Get(context.Background(), "old"); got != nil {
		t.Error("expected old job to be pruned")
	}
	if got, _ := store.Get(context.Background(), "recent"); got == nil {
		t.Error("expected recent job to survive prune")
	}
}

func TestSQLiteStoreCancel(t *testing.T) {
	store := openTestSQLiteStore(t)
	job := &Job{ID: "job-1", ToolName: "t", Status: StatusRunning, CreatedAt: time.Now()}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Cancel(context.Background(), "job-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := store.Get(context.Background(), "job-1")
	if got.Status != StatusFailed {
		t.Errorf("expected status failed after cancel, got %q", got.Status)
	}
	if got.Error != "cancelled" {
		t.Errorf("expected error 'cancelled', got %q", got.Error)
	}
}

func TestSQLiteStoreCancelMissingJob(t *testing.T) {
	store := openTestSQLiteStore(t)
	if err := store.Cancel(context.Background(), "nope"); err == nil {
		t.Error("expected error cancelling a nonexistent job")
	}
}

func TestSQLiteStoreSatisfiesStoreInterface(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
}
