package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/taskforge/internal/api/shared"
	"github.com/phrazzld/taskforge/internal/events"
	"github.com/phrazzld/taskforge/internal/platform/logger"
)

// EventHandler publishes events submitted over HTTP to the in-process
// subscribers. Only task.requested is accepted; the other event types are
// produced by the scheduler itself.
type EventHandler struct {
	emitter   events.EventEmitter
	validator *validator.Validate
}

// NewEventHandler creates an EventHandler publishing through emitter.
func NewEventHandler(emitter events.EventEmitter) *EventHandler {
	return &EventHandler{
		emitter:   emitter,
		validator: validator.New(),
	}
}

// PublishEvent handles POST /api/events requests. The emitter delivers
// synchronously, so a subscriber's refusal (unknown category, shutdown)
// is reported in the response.
func (h *EventHandler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	var req PublishEventRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err), "")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// The payload is checked with the same rules as POST /api/tasks.
	var body SubmitTaskRequest
	dec := json.NewDecoder(bytes.NewReader(req.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: payload: %v", ErrInvalidRequest, err), "")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	event, err := events.NewEvent(req.Type, body.toTaskRequest())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to publish event")
		return
	}
	if err := h.emitter.EmitEvent(r.Context(), event); err != nil {
		HandleAPIError(w, r, err, "Failed to publish event", submitErrorOptions(err)...)
		return
	}

	logger.FromContext(r.Context()).Debug("event published",
		"event_id", event.ID,
		"event_type", event.Type,
		"category", body.Category)

	shared.RespondWithJSON(w, r, http.StatusAccepted, PublishEventResponse{ID: event.ID.String()})
}
