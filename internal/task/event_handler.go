package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskforge/internal/events"
)

// Submitter accepts tasks. *Scheduler implements it.
type Submitter interface {
	Submit(ctx context.Context, req Request) (string, error)
}

// TaskRequestEventHandler implements the events.EventHandler interface
// to turn task.requested events into scheduler submissions.
type TaskRequestEventHandler struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewTaskRequestEventHandler creates a new event handler that submits the
// requested tasks to the given submitter.
func NewTaskRequestEventHandler(submitter Submitter, logger *slog.Logger) *TaskRequestEventHandler {
	return &TaskRequestEventHandler{
		submitter: submitter,
		logger:    logger.With("component", "task_request_event_handler"),
	}
}

// HandleEvent processes task.requested events by decoding the request from
// the payload and submitting it.
func (h *TaskRequestEventHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	if event.Type != events.TypeTaskRequested {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var req Request
	if err := event.UnmarshalPayload(&req); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	id, err := h.submitter.Submit(ctx, req)
	if err != nil {
		h.logger.Error("failed to submit requested task",
			"error", err,
			"event_id", event.ID,
			"category", req.Category)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Debug("submitted requested task",
		"task_id", id,
		"event_id", event.ID,
		"category", req.Category,
		"priority", req.Priority)
	return nil
}
