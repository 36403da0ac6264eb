package api

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/task"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// MockScheduler implements Scheduler with overridable functions.
type MockScheduler struct {
	SubmitFn      func(ctx context.Context, req task.Request) (string, error)
	SubmitBatchFn func(ctx context.Context, reqs []task.Request) ([]string, error)
	StatusFn      func(ctx context.Context) (task.Status, error)
	LookupFn      func(ctx context.Context, id string) (task.Task, bool, error)

	Submitted []task.Request
}

func (m *MockScheduler) Submit(ctx context.Context, req task.Request) (string, error) {
	m.Submitted = append(m.Submitted, req)
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, req)
	}
	return "00000000-0000-0000-0000-000000000001", nil
}

func (m *MockScheduler) SubmitBatch(ctx context.Context, reqs []task.Request) ([]string, error) {
	m.Submitted = append(m.Submitted, reqs...)
	if m.SubmitBatchFn != nil {
		return m.SubmitBatchFn(ctx, reqs)
	}
	ids := make([]string, len(reqs))
	for i := range reqs {
		ids[i] = "batch-" + string(rune('a'+i))
	}
	return ids, nil
}

func (m *MockScheduler) Status(ctx context.Context) (task.Status, error) {
	if m.StatusFn != nil {
		return m.StatusFn(ctx)
	}
	return task.Status{Phase: task.PhaseRunning}, nil
}

func (m *MockScheduler) Lookup(ctx context.Context, id string) (task.Task, bool, error) {
	if m.LookupFn != nil {
		return m.LookupFn(ctx, id)
	}
	return task.Task{}, false, nil
}

// MockHistory implements TaskHistory over a map.
type MockHistory map[string]task.Task

func (m MockHistory) Get(id string) (task.Task, bool) {
	t, ok := m[id]
	return t, ok
}

// MockSnapshotStore implements store.SnapshotStore with overridable functions.
type MockSnapshotStore struct {
	LatestFn func(ctx context.Context) (*store.MetricsSnapshot, error)
	ListFn   func(ctx context.Context, since time.Time, limit int) ([]*store.MetricsSnapshot, error)
}

func (m *MockSnapshotStore) SaveSnapshot(context.Context, *store.MetricsSnapshot) error {
	return nil
}

func (m *MockSnapshotStore) LatestSnapshot(ctx context.Context) (*store.MetricsSnapshot, error) {
	if m.LatestFn != nil {
		return m.LatestFn(ctx)
	}
	return nil, store.ErrSnapshotNotFound
}

func (m *MockSnapshotStore) ListSnapshots(ctx context.Context, since time.Time, limit int) ([]*store.MetricsSnapshot, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, since, limit)
	}
	return nil, nil
}

func (m *MockSnapshotStore) PruneSnapshots(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (m *MockSnapshotStore) Close() error {
	return nil
}
