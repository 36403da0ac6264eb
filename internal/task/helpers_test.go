package task

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/taskforge/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 5 * time.Millisecond
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testConfig returns a fast-ticking config for the given pools.
func testConfig(pools map[string]int) Config {
	return Config{
		Pools:                pools,
		TickInterval:         10 * time.Millisecond,
		MaxAttempts:          3,
		ShutdownTimeout:      2 * time.Second,
		ShutdownPollInterval: 10 * time.Millisecond,
		HeartbeatInterval:    50 * time.Millisecond,
		OrphanPolicy:         OrphanFail,
		EventBuffer:          64,
	}
}

// startScheduler creates and starts a Scheduler and stops it when the test ends.
func startScheduler(t *testing.T, cfg Config, handlers Handlers) (*Scheduler, *recordingEmitter) {
	t.Helper()
	rec := &recordingEmitter{}
	s, err := New(cfg, handlers, rec, setupTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, rec
}

// inspect runs fn on the dispatcher goroutine.
func inspect(t *testing.T, s *Scheduler, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, s.call(ctx, fn))
}

func mustStatus(t *testing.T, s *Scheduler) Status {
	t.Helper()
	st, err := s.Status(context.Background())
	require.NoError(t, err)
	return st
}

func payload(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// recordingEmitter keeps every event it receives.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *recordingEmitter) EmitEvent(_ context.Context, event *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// tasks decodes the task payload of every event of the given type.
func (r *recordingEmitter) tasks(eventType string) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Task
	for _, e := range r.events {
		if e.Type != eventType {
			continue
		}
		var t Task
		if err := e.UnmarshalPayload(&t); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// waitFor blocks until n events of the given type have arrived.
func (r *recordingEmitter) waitFor(t *testing.T, eventType string, n int) []Task {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.tasks(eventType)) >= n
	}, waitTimeout, waitTick, "waiting for %d %s events", n, eventType)
	return r.tasks(eventType)
}

// gate is a handler that records the order in which payloads start and
// blocks each execution until released.
type gate struct {
	mu      sync.Mutex
	started []string
	release chan struct{}
}

func newGate() *gate {
	return &gate{release: make(chan struct{})}
}

func (g *gate) handle(ctx context.Context, p json.RawMessage) (json.RawMessage, error) {
	var name string
	_ = json.Unmarshal(p, &name)
	g.mu.Lock()
	g.started = append(g.started, name)
	g.mu.Unlock()

	select {
	case <-g.release:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *gate) order() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.started...)
}

func (g *gate) waitStarted(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(g.order()) >= n
	}, waitTimeout, waitTick, "waiting for %d executions to start", n)
}

// next lets one blocked execution finish.
func (g *gate) next(t *testing.T) {
	t.Helper()
	select {
	case g.release <- struct{}{}:
	case <-time.After(waitTimeout):
		t.Fatal("no execution waiting on gate")
	}
}

// assertInvariants checks worker exclusivity and queue membership on the
// dispatcher goroutine.
func assertInvariants(t *testing.T, s *Scheduler) {
	t.Helper()
	inspect(t, s, func() {
		seen := make(map[string]string)
		s.workers.each(func(rec *workerRecord) {
			assert.Equal(t, rec.status == WorkerBusy, rec.currentTaskID != "",
				"worker %s: busy iff current task set", rec.id)
			if rec.currentTaskID == "" {
				return
			}
			if other, dup := seen[rec.currentTaskID]; dup {
				t.Errorf("task %s held by workers %s and %s", rec.currentTaskID, other, rec.id)
			}
			seen[rec.currentTaskID] = rec.id
		})

		for id, tk := range s.tasks {
			band, count := s.queues.locate(id)
			switch tk.State {
			case StateQueued:
				assert.Equal(t, 1, count, "queued task %s must be in exactly one band", id)
				assert.Equal(t, tk.Priority, band, "task %s in wrong band", id)
				_, held := seen[id]
				assert.False(t, held, "queued task %s also held by a worker", id)
			case StateAssigned, StateRunning:
				assert.Equal(t, 0, count, "assigned task %s must not be queued", id)
				assert.Equal(t, tk.WorkerID, seen[id], "task %s worker mismatch", id)
			default:
				t.Errorf("terminal task %s still live in state %s", id, tk.State)
			}
		}
	})
}
