package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/taskforge/internal/metrics"
	"github.com/phrazzld/taskforge/internal/redact"
	"github.com/phrazzld/taskforge/internal/task"
)

// SubmitTaskRequest is the body of POST /api/tasks.
type SubmitTaskRequest struct {
	// Category selects the worker pool; empty means the general pool
	Category string `json:"category" validate:"omitempty,max=64"`

	// Priority is one of high, normal, low or scheduled; empty means normal
	Priority string `json:"priority" validate:"omitempty,oneof=high normal low scheduled"`

	// Payload is passed to the handler untouched
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (r SubmitTaskRequest) toTaskRequest() task.Request {
	return task.Request{
		Category: r.Category,
		Priority: task.Priority(r.Priority),
		Payload:  r.Payload,
	}
}

// SubmitBatchRequest is the body of POST /api/tasks/batch.
type SubmitBatchRequest struct {
	Tasks []SubmitTaskRequest `json:"tasks" validate:"required,min=1,max=1000,dive"`
}

// PublishEventRequest is the body of POST /api/events. The payload of a
// task.requested event has the shape of SubmitTaskRequest.
type PublishEventRequest struct {
	Type    string          `json:"type" validate:"required,oneof=task.requested"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// PublishEventResponse carries the ID of a delivered event.
type PublishEventResponse struct {
	ID string `json:"event_id"`
}

// SubmitTaskResponse is returned for an accepted task.
type SubmitTaskResponse struct {
	ID string `json:"id"`
}

// SubmitBatchResponse lists the IDs of an accepted batch in request order.
type SubmitBatchResponse struct {
	IDs []string `json:"ids"`
}

// TaskResponse describes a live or finished task.
type TaskResponse struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Priority    string          `json:"priority"`
	State       string          `json:"state"`
	Attempts    int             `json:"attempts"`
	WorkerID    string          `json:"worker_id,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMS  int64           `json:"duration_ms,omitempty"`
	WaitMS      int64           `json:"wait_ms,omitempty"`
}

// taskToResponse converts a task. Handler errors are redacted before they
// leave the process.
func taskToResponse(t task.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Category:    t.Category,
		Priority:    string(t.Priority),
		State:       string(t.State),
		Attempts:    t.Attempts,
		WorkerID:    t.WorkerID,
		Result:      t.Result,
		SubmittedAt: t.SubmittedAt,
		DurationMS:  t.Duration().Milliseconds(),
		WaitMS:      t.WaitTime().Milliseconds(),
	}
	if t.Error != "" {
		resp.Error = redact.String(t.Error)
	}
	if !t.StartedAt.IsZero() {
		started := t.StartedAt
		resp.StartedAt = &started
	}
	if !t.CompletedAt.IsZero() {
		completed := t.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Phase   string                `json:"phase"`
	Workers task.WorkerCounts     `json:"workers"`
	Queues  task.QueueDepths      `json:"queues"`
	Tasks   task.TaskCounts       `json:"tasks"`
	Pool    []task.WorkerInfo     `json:"pool"`
	Process *metrics.ProcessStats `json:"process,omitempty"`
}

func statusToResponse(st task.Status) StatusResponse {
	return StatusResponse{
		Phase:   st.Phase.String(),
		Workers: st.WorkerCounts(),
		Queues:  st.Queues,
		Tasks:   st.Tasks,
		Pool:    st.Workers,
	}
}

// SnapshotListResponse is the body of GET /api/metrics/snapshots.
type SnapshotListResponse struct {
	Snapshots []metrics.Snapshot `json:"snapshots"`
}
