package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/taskforge/internal/api/shared"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceMiddleware(t *testing.T) {
	log, buf := logger.GetTestLogger(t)

	var seenTraceID string
	handler := chimw.RequestID(NewTraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTraceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})))

	t.Run("generates trace id", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

		assert.Equal(t, http.StatusTeapot, w.Code)
		require.Len(t, seenTraceID, shared.TraceIDLength)
		assert.Equal(t, seenTraceID, w.Header().Get(TraceIDHeader))

		entries := buf.EntriesWithMessage("inside handler")
		require.Len(t, entries, 1)
		handlerEntry := entries[0]
		assert.Equal(t, seenTraceID, handlerEntry["trace_id"])
		assert.NotEmpty(t, handlerEntry["request_id"])
	})

	t.Run("reuses incoming trace id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set(TraceIDHeader, "abc123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, "abc123", seenTraceID)
		assert.Equal(t, "abc123", w.Header().Get(TraceIDHeader))
	})

	t.Run("logs finished request with status", func(t *testing.T) {
		buf.Reset()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
		logger.AssertLogContains(t, buf, "request finished")
		logger.AssertLogContains(t, buf, `"status":418`)
	})
}
