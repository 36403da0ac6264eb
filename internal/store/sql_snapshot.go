package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/taskforge/internal/platform/logger"
)

// Dialect describes the differences between the SQL databases that back SQLSnapshotStore.
type Dialect struct {
	// Name is the goose dialect name.
	Name string

	// Placeholder returns the bind parameter for the n-th argument, starting at 1.
	Placeholder func(n int) string

	// MapError translates driver errors into store errors. May be nil.
	MapError func(error) error

	// EncodeTime converts a timestamp into a driver argument. May be nil,
	// in which case the UTC time is passed through.
	EncodeTime func(time.Time) any
}

// QuestionPlaceholder binds parameters as "?".
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder binds parameters as "$1", "$2", ...
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

const snapshotColumns = `id, taken_at, phase,
	workers_total, workers_idle, workers_busy, workers_unreachable,
	queue_high, queue_normal, queue_low, queue_scheduled,
	tasks_total, tasks_completed, tasks_failed, tasks_cancelled,
	tasks_dropped, tasks_queued, tasks_running,
	goroutines, heap_alloc_bytes, sys_bytes, num_gc, uptime_seconds`

// SQLSnapshotStore implements SnapshotStore over database/sql.
type SQLSnapshotStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ SnapshotStore = (*SQLSnapshotStore)(nil)

// NewSQLSnapshotStore creates a snapshot store for an open database. The schema
// must already be migrated.
func NewSQLSnapshotStore(db *sql.DB, dialect Dialect) *SQLSnapshotStore {
	if dialect.Placeholder == nil {
		dialect.Placeholder = QuestionPlaceholder
	}
	return &SQLSnapshotStore{db: db, dialect: dialect}
}

// DB returns the underlying connection pool.
func (s *SQLSnapshotStore) DB() *sql.DB {
	return s.db
}

// SaveSnapshot inserts the snapshot and its per-category rows in one transaction.
func (s *SQLSnapshotStore) SaveSnapshot(ctx context.Context, snapshot *MetricsSnapshot) error {
	log := logger.FromContext(ctx)

	if err := snapshot.Validate(); err != nil {
		return err
	}

	insertSnapshot := s.rebind(`
		INSERT INTO metrics_snapshots (
			taken_at, phase,
			workers_total, workers_idle, workers_busy, workers_unreachable,
			queue_high, queue_normal, queue_low, queue_scheduled,
			tasks_total, tasks_completed, tasks_failed, tasks_cancelled,
			tasks_dropped, tasks_queued, tasks_running,
			goroutines, heap_alloc_bytes, sys_bytes, num_gc, uptime_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)
	err := RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, insertSnapshot,
			s.encodeTime(snapshot.TakenAt), snapshot.Phase,
			snapshot.WorkersTotal, snapshot.WorkersIdle, snapshot.WorkersBusy, snapshot.WorkersUnreachable,
			snapshot.QueueHigh, snapshot.QueueNormal, snapshot.QueueLow, snapshot.QueueScheduled,
			snapshot.TasksTotal, snapshot.TasksCompleted, snapshot.TasksFailed, snapshot.TasksCancelled,
			snapshot.TasksDropped, snapshot.TasksQueued, snapshot.TasksRunning,
			snapshot.Goroutines, int64(snapshot.HeapAllocBytes), int64(snapshot.SysBytes),
			int64(snapshot.NumGC), snapshot.UptimeSeconds,
		).Scan(&id)
		if err != nil {
			return s.mapError(err)
		}

		if err := s.insertCategories(ctx, tx, id, snapshot.WorkersByCategory); err != nil {
			return err
		}

		snapshot.ID = id
		return nil
	})
	if err != nil {
		log.Error("failed to save metrics snapshot",
			"dialect", s.dialect.Name,
			"error", err)
		return NewStoreError("metrics_snapshot", "save", "insert failed", err)
	}

	log.Debug("saved metrics snapshot", "snapshot_id", snapshot.ID)
	return nil
}

// LatestSnapshot returns the most recent snapshot.
func (s *SQLSnapshotStore) LatestSnapshot(ctx context.Context) (*MetricsSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM metrics_snapshots ORDER BY taken_at DESC, id DESC LIMIT 1`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewStoreError("metrics_snapshot", "latest", "query failed", s.mapError(err))
	}
	snapshots, err := scanSnapshots(rows)
	if err != nil {
		return nil, NewStoreError("metrics_snapshot", "latest", "scan failed", err)
	}
	if len(snapshots) == 0 {
		return nil, ErrSnapshotNotFound
	}

	if err := s.loadCategories(ctx, s.db, snapshots); err != nil {
		return nil, NewStoreError("metrics_snapshot", "latest", "loading categories failed", err)
	}
	return snapshots[0], nil
}

// ListSnapshots returns snapshots taken at or after since, oldest first.
// A non-positive limit returns every matching snapshot.
func (s *SQLSnapshotStore) ListSnapshots(ctx context.Context, since time.Time, limit int) ([]*MetricsSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM metrics_snapshots WHERE taken_at >= ? ORDER BY taken_at ASC, id ASC`
	args := []any{s.encodeTime(since)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, NewStoreError("metrics_snapshot", "list", "query failed", s.mapError(err))
	}
	snapshots, err := scanSnapshots(rows)
	if err != nil {
		return nil, NewStoreError("metrics_snapshot", "list", "scan failed", err)
	}

	if err := s.loadCategories(ctx, s.db, snapshots); err != nil {
		return nil, NewStoreError("metrics_snapshot", "list", "loading categories failed", err)
	}
	return snapshots, nil
}

// PruneSnapshots deletes snapshots taken before the cutoff.
func (s *SQLSnapshotStore) PruneSnapshots(ctx context.Context, before time.Time) (int64, error) {
	log := logger.FromContext(ctx)

	deleteCategories := s.rebind(`
		DELETE FROM metrics_category_workers
		WHERE snapshot_id IN (SELECT id FROM metrics_snapshots WHERE taken_at < ?)
	`)
	deleteSnapshots := s.rebind(`DELETE FROM metrics_snapshots WHERE taken_at < ?`)

	var removed int64
	err := RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		cutoff := s.encodeTime(before)
		if _, err := tx.ExecContext(ctx, deleteCategories, cutoff); err != nil {
			return s.mapError(err)
		}
		result, err := tx.ExecContext(ctx, deleteSnapshots, cutoff)
		if err != nil {
			return s.mapError(err)
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, NewStoreError("metrics_snapshot", "prune", "delete failed", err)
	}

	log.Debug("pruned metrics snapshots", "removed", removed, "before", before)
	return removed, nil
}

// Close closes the connection pool.
func (s *SQLSnapshotStore) Close() error {
	return s.db.Close()
}

func (s *SQLSnapshotStore) insertCategories(ctx context.Context, q Querier, snapshotID int64, byCategory map[string]int) error {
	insert := s.rebind(`INSERT INTO metrics_category_workers (snapshot_id, category, workers) VALUES (?, ?, ?)`)
	for category, workers := range byCategory {
		if _, err := q.ExecContext(ctx, insert, snapshotID, category, workers); err != nil {
			return s.mapError(err)
		}
	}
	return nil
}

func (s *SQLSnapshotStore) loadCategories(ctx context.Context, q Querier, snapshots []*MetricsSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	byID := make(map[int64]*MetricsSnapshot, len(snapshots))
	placeholders := make([]string, 0, len(snapshots))
	args := make([]any, 0, len(snapshots))
	for _, snap := range snapshots {
		byID[snap.ID] = snap
		placeholders = append(placeholders, "?")
		args = append(args, snap.ID)
	}

	query := s.rebind(`SELECT snapshot_id, category, workers FROM metrics_category_workers WHERE snapshot_id IN (` +
		strings.Join(placeholders, ", ") + `)`)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return s.mapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id       int64
			category string
			workers  int
		)
		if err := rows.Scan(&id, &category, &workers); err != nil {
			return err
		}
		snap := byID[id]
		if snap == nil {
			continue
		}
		if snap.WorkersByCategory == nil {
			snap.WorkersByCategory = make(map[string]int)
		}
		snap.WorkersByCategory[category] = workers
	}
	return rows.Err()
}

func scanSnapshots(rows *sql.Rows) ([]*MetricsSnapshot, error) {
	defer func() { _ = rows.Close() }()

	var snapshots []*MetricsSnapshot
	for rows.Next() {
		var (
			snap             MetricsSnapshot
			takenAt          timeValue
			heap, sys, numGC int64
		)
		err := rows.Scan(
			&snap.ID, &takenAt, &snap.Phase,
			&snap.WorkersTotal, &snap.WorkersIdle, &snap.WorkersBusy, &snap.WorkersUnreachable,
			&snap.QueueHigh, &snap.QueueNormal, &snap.QueueLow, &snap.QueueScheduled,
			&snap.TasksTotal, &snap.TasksCompleted, &snap.TasksFailed, &snap.TasksCancelled,
			&snap.TasksDropped, &snap.TasksQueued, &snap.TasksRunning,
			&snap.Goroutines, &heap, &sys, &numGC, &snap.UptimeSeconds,
		)
		if err != nil {
			return nil, err
		}
		snap.TakenAt = takenAt.Time
		snap.HeapAllocBytes = uint64(heap)
		snap.SysBytes = uint64(sys)
		snap.NumGC = uint32(numGC)
		snapshots = append(snapshots, &snap)
	}
	return snapshots, rows.Err()
}

// rebind rewrites "?" parameters into the dialect's placeholder syntax.
func (s *SQLSnapshotStore) rebind(query string) string {
	if s.dialect.Placeholder == nil || s.dialect.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLSnapshotStore) encodeTime(t time.Time) any {
	if s.dialect.EncodeTime != nil {
		return s.dialect.EncodeTime(t)
	}
	return t.UTC()
}

func (s *SQLSnapshotStore) mapError(err error) error {
	if s.dialect.MapError != nil {
		return s.dialect.MapError(err)
	}
	return err
}

// timeValue scans timestamps stored either natively or as Unix nanoseconds.
type timeValue struct {
	Time time.Time
}

func (v *timeValue) Scan(src any) error {
	switch t := src.(type) {
	case time.Time:
		v.Time = t.UTC()
	case int64:
		v.Time = time.Unix(0, t).UTC()
	case nil:
		v.Time = time.Time{}
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}
