package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/taskforge/internal/store"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogSink writes each snapshot as one structured log line.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink creates a LogSink logging at level.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, level: level}
}

func (s *LogSink) Write(ctx context.Context, snap Snapshot) error {
	s.logger.LogAttrs(ctx, s.level, "metrics snapshot",
		slog.String("phase", snap.Phase),
		slog.Group("workers",
			slog.Int("total", snap.Workers.Total),
			slog.Int("idle", snap.Workers.Idle),
			slog.Int("busy", snap.Workers.Busy),
			slog.Int("unreachable", snap.Workers.Unreachable)),
		slog.Group("queues",
			slog.Int("high", snap.Queues.High),
			slog.Int("normal", snap.Queues.Normal),
			slog.Int("low", snap.Queues.Low),
			slog.Int("scheduled", snap.Queues.Scheduled)),
		slog.Group("tasks",
			slog.Int("total", snap.Tasks.Total),
			slog.Int("completed", snap.Tasks.Completed),
			slog.Int("failed", snap.Tasks.Failed),
			slog.Int("cancelled", snap.Tasks.Cancelled)),
		slog.Int("goroutines", snap.Process.Goroutines),
		slog.Uint64("heap_alloc_bytes", snap.Process.HeapAllocBytes),
		slog.Float64("uptime_seconds", snap.Process.UptimeSeconds),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }

// FileSinkConfig configures a FileSink. Zero values fall back to lumberjack's defaults.
type FileSinkConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileSink appends snapshots as JSON lines to a size-rotated file.
type FileSink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	enc *json.Encoder
}

// NewFileSink creates a FileSink. The file is opened on first write.
func NewFileSink(cfg FileSinkConfig) *FileSink {
	out := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &FileSink{out: out, enc: json.NewEncoder(out)}
}

func (s *FileSink) Write(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(snap)
}

// Rotate starts a new file, keeping the old one as a backup.
func (s *FileSink) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Rotate()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}

// StoreSink saves snapshots to a SnapshotStore. With a positive retention,
// each write also prunes snapshots older than the retention window.
type StoreSink struct {
	store     store.SnapshotStore
	retention time.Duration
	logger    *slog.Logger
}

// NewStoreSink creates a StoreSink. It takes ownership of st and closes it on Close.
func NewStoreSink(st store.SnapshotStore, retention time.Duration, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{store: st, retention: retention, logger: logger}
}

func (s *StoreSink) Write(ctx context.Context, snap Snapshot) error {
	if err := s.store.SaveSnapshot(ctx, snap.Record()); err != nil {
		return err
	}
	if s.retention <= 0 {
		return nil
	}

	removed, err := s.store.PruneSnapshots(ctx, snap.TakenAt.Add(-s.retention))
	if err != nil {
		return err
	}
	if removed > 0 {
		s.logger.Debug("pruned old metrics snapshots", "removed", removed)
	}
	return nil
}

func (s *StoreSink) Close() error {
	return s.store.Close()
}
