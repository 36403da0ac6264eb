package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/taskforge/internal/api/shared"
	"github.com/phrazzld/taskforge/internal/metrics"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/task"
)

// Scheduler is the part of *task.Scheduler the HTTP layer uses.
type Scheduler interface {
	Submit(ctx context.Context, req task.Request) (string, error)
	SubmitBatch(ctx context.Context, reqs []task.Request) ([]string, error)
	Status(ctx context.Context) (task.Status, error)
	Lookup(ctx context.Context, id string) (task.Task, bool, error)
}

// TaskHistory looks up finished tasks. *task.History implements it.
type TaskHistory interface {
	Get(id string) (task.Task, bool)
}

// TaskHandler serves task submission and status requests.
type TaskHandler struct {
	scheduler Scheduler
	history   TaskHistory
	validator *validator.Validate
	startedAt time.Time
}

// NewTaskHandler creates a TaskHandler. history may be nil, in which case
// finished tasks are reported as not found.
func NewTaskHandler(scheduler Scheduler, history TaskHistory) *TaskHandler {
	return &TaskHandler{
		scheduler: scheduler,
		history:   history,
		validator: validator.New(),
		startedAt: time.Now(),
	}
}

// SubmitTask handles POST /api/tasks requests
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err), "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	id, err := h.scheduler.Submit(r.Context(), req.toTaskRequest())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit task", submitErrorOptions(err)...)
		return
	}

	logger.FromContext(r.Context()).Debug("task submitted",
		"task_id", id,
		"category", req.Category,
		"priority", req.Priority)

	// 202 Accepted: the task runs asynchronously
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitTaskResponse{ID: id})
}

// SubmitBatch handles POST /api/tasks/batch requests. The batch is accepted
// or refused as a whole.
func (h *TaskHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req SubmitBatchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err), "")
		return
	}
	if len(req.Tasks) == 0 {
		HandleAPIError(w, r, task.ErrEmptyBatch, "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	reqs := make([]task.Request, len(req.Tasks))
	for i, t := range req.Tasks {
		reqs[i] = t.toTaskRequest()
	}

	ids, err := h.scheduler.SubmitBatch(r.Context(), reqs)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit batch", submitErrorOptions(err)...)
		return
	}

	logger.FromContext(r.Context()).Debug("task batch submitted", "count", len(ids))
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitBatchResponse{IDs: ids})
}

// GetTask handles GET /api/tasks/{id} requests. Live tasks come from the
// scheduler and finished ones from the history.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	t, ok, err := h.scheduler.Lookup(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to look up task")
		return
	}
	if !ok && h.history != nil {
		t, ok = h.history.Get(id)
	}
	if !ok {
		HandleAPIError(w, r, ErrTaskNotFound, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// GetStatus handles GET /api/status requests.
func (h *TaskHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.scheduler.Status(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read scheduler status")
		return
	}

	resp := statusToResponse(st)
	process := metrics.ReadProcessStats(h.startedAt, time.Now())
	resp.Process = &process
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// submitErrorOptions logs unknown categories at WARN: they usually mean a
// producer is configured for pools this server does not run. Shutdown
// rejections keep their default level.
func submitErrorOptions(err error) []shared.ResponseOption {
	if errors.Is(err, task.ErrUnknownCategory) {
		return []shared.ResponseOption{shared.WithElevatedLogLevel()}
	}
	return nil
}
