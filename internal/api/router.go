package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/taskforge/internal/api/middleware"
	"github.com/phrazzld/taskforge/internal/platform/logger"
)

// RouterConfig holds the handlers mounted by NewRouter.
type RouterConfig struct {
	Tasks *TaskHandler
	// Metrics is optional; without it the snapshot routes are not registered.
	Metrics *MetricsHandler
	// Events is optional; without it POST /api/events is not registered.
	Events *EventHandler
	Logger *slog.Logger
}

// NewRouter builds the HTTP routes with the standard middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tasks", cfg.Tasks.SubmitTask)
		r.Post("/tasks/batch", cfg.Tasks.SubmitBatch)
		r.Get("/tasks/{id}", cfg.Tasks.GetTask)
		r.Get("/status", cfg.Tasks.GetStatus)

		if cfg.Events != nil {
			r.Post("/events", cfg.Events.PublishEvent)
		}
		if cfg.Metrics != nil {
			r.Get("/metrics/snapshots", cfg.Metrics.ListSnapshots)
			r.Get("/metrics/snapshots/latest", cfg.Metrics.GetLatestSnapshot)
		}
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.FromContext(r.Context()).Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
