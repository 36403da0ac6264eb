package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State represents the current lifecycle state of a task
type State string

// Possible task states
const (
	StateQueued    State = "queued"
	StateAssigned  State = "assigned"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether no further transitions are possible from s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Priority selects the band a task waits in while no worker is free
type Priority string

// Priority bands, highest first
const (
	PriorityHigh      Priority = "high"
	PriorityNormal    Priority = "normal"
	PriorityLow       Priority = "low"
	PriorityScheduled Priority = "scheduled"
)

// bandOrder is the order in which the dispatcher scans the priority bands.
var bandOrder = [...]Priority{PriorityHigh, PriorityNormal, PriorityLow, PriorityScheduled}

// DefaultCategory is used when a request does not name a pool.
const DefaultCategory = "general"

// ParsePriority converts a string into a Priority. The empty string maps to
// PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityHigh, PriorityNormal, PriorityLow, PriorityScheduled:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// band returns the index of the queue band that holds tasks of priority p.
func (p Priority) band() int {
	for i, b := range bandOrder {
		if b == p {
			return i
		}
	}
	return -1
}

// Request describes a unit of work submitted by a caller.
// The payload is never inspected by the scheduler.
type Request struct {
	Category string          `json:"category"`
	Priority Priority        `json:"priority,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// normalize fills in the default category and priority.
func (r Request) normalize() (Request, error) {
	if strings.TrimSpace(r.Category) == "" {
		r.Category = DefaultCategory
	}
	p, err := ParsePriority(string(r.Priority))
	if err != nil {
		return r, err
	}
	r.Priority = p
	return r, nil
}

// Task is a submitted request plus the lifecycle fields maintained by the
// dispatcher. Values handed out by the Scheduler are copies.
type Task struct {
	ID          string          `json:"id"`
	Category    string          `json:"category"`
	Priority    Priority        `json:"priority"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	State       State           `json:"state"`
	Attempts    int             `json:"attempts"`
	WorkerID    string          `json:"worker_id,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	CompletedAt time.Time       `json:"completed_at,omitempty"`
}

// newTask creates a queued task from a normalized request.
func newTask(req Request, now time.Time) *Task {
	return &Task{
		ID:          uuid.New().String(),
		Category:    req.Category,
		Priority:    req.Priority,
		Payload:     req.Payload,
		State:       StateQueued,
		SubmittedAt: now,
	}
}

// Duration returns how long the last execution took, or zero when the task
// never started or has not finished.
func (t Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}

// WaitTime returns the time between submission and the start of the last
// execution.
func (t Task) WaitTime() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	return t.StartedAt.Sub(t.SubmittedAt)
}
