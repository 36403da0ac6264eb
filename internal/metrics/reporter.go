package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/taskforge/internal/events"
	"github.com/phrazzld/taskforge/internal/task"
)

// DefaultInterval is the reporting period when none is configured.
const DefaultInterval = 5 * time.Second

// StatusSource is the read-only view of the scheduler the reporter needs.
type StatusSource interface {
	Status(ctx context.Context) (task.Status, error)
}

// Sink receives every snapshot.
type Sink interface {
	Write(ctx context.Context, snapshot Snapshot) error
	Close() error
}

// Reporter samples a StatusSource on a fixed interval.
type Reporter struct {
	source   StatusSource
	emitter  events.EventEmitter
	sinks    []Sink
	interval time.Duration
	logger   *slog.Logger
	start    time.Time
	now      func() time.Time

	reports    atomic.Uint64
	sinkErrors atomic.Uint64
	closeOnce  sync.Once
}

// NewReporter creates a reporter. emitter may be nil, in which case no
// metrics.snapshot events are published.
func NewReporter(
	source StatusSource,
	emitter events.EventEmitter,
	interval time.Duration,
	logger *slog.Logger,
	sinks ...Sink,
) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		source:   source,
		emitter:  emitter,
		sinks:    sinks,
		interval: interval,
		logger:   logger.With("component", "metrics_reporter"),
		start:    time.Now(),
		now:      time.Now,
	}
}

// Run reports every interval until ctx is cancelled, then takes one final
// report so the last state reaches the sinks. It returns nil on cancellation.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Info("metrics reporter started",
		"interval", r.interval,
		"sinks", len(r.sinks))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.interval)
			if _, err := r.Report(finalCtx); err != nil {
				r.logger.Warn("final metrics report failed", "error", err)
			}
			cancel()
			r.logger.Info("metrics reporter stopped", "reports", r.Reports())
			return nil
		case <-ticker.C:
			if _, err := r.Report(ctx); err != nil {
				r.logger.Warn("metrics report failed", "error", err)
			}
		}
	}
}

// Report takes one snapshot and publishes it. A failed status read returns
// an error without touching the sinks. Sink and emitter failures are joined
// into the returned error; every sink is still attempted.
func (r *Reporter) Report(ctx context.Context) (Snapshot, error) {
	status, err := r.source.Status(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read scheduler status: %w", err)
	}

	now := r.now()
	snapshot := NewSnapshot(status, ReadProcessStats(r.start, now), now)
	r.reports.Add(1)

	var errs []error
	if r.emitter != nil {
		event, err := events.NewEvent(events.TypeMetricsSnapshot, snapshot)
		if err == nil {
			err = r.emitter.EmitEvent(ctx, event)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("emit %s: %w", events.TypeMetricsSnapshot, err))
		}
	}

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, snapshot); err != nil {
			r.sinkErrors.Add(1)
			r.logger.Error("metrics sink write failed",
				"sink", fmt.Sprintf("%T", sink),
				"error", err)
			errs = append(errs, err)
		}
	}

	return snapshot, errors.Join(errs...)
}

// Reports returns the number of snapshots taken.
func (r *Reporter) Reports() uint64 {
	return r.reports.Load()
}

// SinkErrors returns the number of failed sink writes.
func (r *Reporter) SinkErrors() uint64 {
	return r.sinkErrors.Load()
}

// Close closes every sink. It is safe to call more than once.
func (r *Reporter) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		for _, sink := range r.sinks {
			if err := sink.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
