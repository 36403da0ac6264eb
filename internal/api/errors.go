package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/taskforge/internal/api/shared"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/task"
)

// Request errors raised by the handlers themselves.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidTaskID  = errors.New("invalid task id")
	ErrTaskNotFound   = errors.New("task not found")
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking their messages.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrInvalidTaskID),
		errors.Is(err, task.ErrUnknownCategory),
		errors.Is(err, task.ErrInvalidPriority),
		errors.Is(err, task.ErrEmptyBatch),
		errors.Is(err, store.ErrInvalidEntity),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	case errors.Is(err, ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, task.ErrSchedulerShuttingDown),
		errors.Is(err, task.ErrSchedulerNotStarted):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)
	case errors.Is(err, ErrInvalidTaskID):
		return "Invalid task ID"
	case errors.Is(err, ErrInvalidRequest):
		return "Invalid request format"
	case errors.Is(err, task.ErrUnknownCategory):
		return "Unknown task category"
	case errors.Is(err, task.ErrInvalidPriority):
		return "Invalid task priority"
	case errors.Is(err, task.ErrEmptyBatch):
		return "Batch must contain at least one task"
	case errors.Is(err, ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrSnapshotNotFound):
		return "No metrics snapshot recorded yet"
	case errors.Is(err, store.ErrNotFound):
		return "Not found"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	case errors.Is(err, task.ErrSchedulerShuttingDown):
		return "Scheduler is shutting down"
	case errors.Is(err, task.ErrSchedulerNotStarted):
		return "Scheduler is not running"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns a validator error into "Invalid <field>: <reason>".
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}

	errMsg := err.Error()
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 5 {
				return fmt.Sprintf("Invalid %s: %s", fieldParts[1], getValidationTagMessage(fieldParts[3]))
			}
			if len(fieldParts) >= 3 {
				return fmt.Sprintf("Invalid %s", fieldParts[1])
			}
		}
	}
	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err. fallbackMsg
// replaces the generic message for 500 responses.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallbackMsg string, opts ...shared.ResponseOption) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallbackMsg != "" {
		msg = fallbackMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
}
