package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the Scheduler
var (
	ErrSchedulerShuttingDown = errors.New("scheduler shutting down")
	ErrSchedulerNotStarted   = errors.New("scheduler not started")
	ErrWorkerCrashed         = errors.New("worker crashed")
	ErrUnknownCategory       = errors.New("unknown task category")
	ErrInvalidPriority       = errors.New("invalid task priority")
	ErrMissingHandler        = errors.New("no handler registered for category")
	ErrDrainTimeout          = errors.New("shutdown wait elapsed with tasks still running")
	ErrEmptyBatch            = errors.New("empty task batch")

	// errLoopStopped is returned internally once the dispatcher loop has exited.
	errLoopStopped = errors.New("dispatcher loop stopped")
)

// ExecutionError is the failure recorded when a handler returns an error
// while running a task.
type ExecutionError struct {
	TaskID  string
	Attempt int
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %s attempt %d: %v", e.TaskID, e.Attempt, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
