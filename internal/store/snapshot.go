package store

import (
	"context"
	"fmt"
	"time"
)

// MetricsSnapshot is the persisted form of one metrics report.
type MetricsSnapshot struct {
	ID      int64
	TakenAt time.Time
	Phase   string

	WorkersTotal       int
	WorkersIdle        int
	WorkersBusy        int
	WorkersUnreachable int
	// WorkersByCategory is stored in its own table, one row per category.
	WorkersByCategory map[string]int

	QueueHigh      int
	QueueNormal    int
	QueueLow       int
	QueueScheduled int

	TasksTotal     int
	TasksCompleted int
	TasksFailed    int
	TasksCancelled int
	TasksDropped   int
	TasksQueued    int
	TasksRunning   int

	Goroutines     int
	HeapAllocBytes uint64
	SysBytes       uint64
	NumGC          uint32
	UptimeSeconds  float64
}

// Validate checks the snapshot before it is written.
func (s *MetricsSnapshot) Validate() error {
	if s.TakenAt.IsZero() {
		return fmt.Errorf("%w: taken_at is required", ErrInvalidEntity)
	}
	counts := []int{
		s.WorkersTotal, s.WorkersIdle, s.WorkersBusy, s.WorkersUnreachable,
		s.QueueHigh, s.QueueNormal, s.QueueLow, s.QueueScheduled,
		s.TasksTotal, s.TasksCompleted, s.TasksFailed, s.TasksCancelled,
		s.TasksDropped, s.TasksQueued, s.TasksRunning,
		s.Goroutines,
	}
	for _, c := range counts {
		if c < 0 {
			return fmt.Errorf("%w: counts must not be negative", ErrInvalidEntity)
		}
	}
	for category, n := range s.WorkersByCategory {
		if category == "" || n < 0 {
			return fmt.Errorf("%w: bad category count %q=%d", ErrInvalidEntity, category, n)
		}
	}
	return nil
}

// SnapshotStore persists metrics snapshots.
type SnapshotStore interface {
	// SaveSnapshot inserts the snapshot and sets its ID.
	SaveSnapshot(ctx context.Context, snapshot *MetricsSnapshot) error

	// LatestSnapshot returns the most recent snapshot or ErrSnapshotNotFound.
	LatestSnapshot(ctx context.Context) (*MetricsSnapshot, error)

	// ListSnapshots returns up to limit snapshots taken at or after since,
	// oldest first.
	ListSnapshots(ctx context.Context, since time.Time, limit int) ([]*MetricsSnapshot, error)

	// PruneSnapshots deletes snapshots taken before the cutoff and reports
	// how many were removed.
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)

	// Close releases the underlying connection pool.
	Close() error
}
