package task

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru"
	"github.com/phrazzld/taskforge/internal/events"
)

// DefaultHistorySize is the number of finished tasks History keeps by default.
const DefaultHistorySize = 1000

// History remembers the most recently finished tasks. It consumes the
// scheduler's terminal task events and implements events.EventHandler.
type History struct {
	cache  *lru.Cache
	logger *slog.Logger
}

// NewHistory creates a History holding at most size tasks.
func NewHistory(size int, logger *slog.Logger) (*History, error) {
	if size <= 0 {
		size = DefaultHistorySize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create history cache: %w", err)
	}
	return &History{
		cache:  cache,
		logger: logger.With("component", "task_history"),
	}, nil
}

// HandleEvent records completed, failed and cancelled tasks. Other event
// types are ignored.
func (h *History) HandleEvent(_ context.Context, event *events.Event) error {
	switch event.Type {
	case events.TypeTaskCompleted, events.TypeTaskFailed, events.TypeTaskCancelled:
	default:
		return nil
	}

	var t Task
	if err := event.UnmarshalPayload(&t); err != nil {
		h.logger.Error("failed to unmarshal task event", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal task event: %w", err)
	}
	if evicted := h.cache.Add(t.ID, t); evicted {
		h.logger.Debug("history full, evicted oldest task", "size", h.cache.Len())
	}
	return nil
}

// Get returns the finished task with the given ID.
func (h *History) Get(id string) (Task, bool) {
	v, ok := h.cache.Get(id)
	if !ok {
		return Task{}, false
	}
	return v.(Task), true
}

// Len returns the number of tasks held.
func (h *History) Len() int {
	return h.cache.Len()
}
