package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/phrazzld/taskforge/internal/api"
	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/events"
	"github.com/phrazzld/taskforge/internal/metrics"
	"github.com/phrazzld/taskforge/internal/platform/postgres"
	"github.com/phrazzld/taskforge/internal/platform/sqlite"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/task"
	"golang.org/x/sync/errgroup"
)

const (
	// shutdownGrace is added to the scheduler's drain bound before the
	// shutdown context gives up on it.
	shutdownGrace = 5 * time.Second

	httpShutdownTimeout = 10 * time.Second
)

// application holds the shared dependencies of the serve command and
// releases them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	emitter   *events.InMemoryEventEmitter
	history   *task.History
	scheduler *task.Scheduler
	reporter  *metrics.Reporter

	// snapshots is nil unless a metrics store is configured
	snapshots store.SnapshotStore

	server   *http.Server
	listener net.Listener
}

// newApplication wires the scheduler, its event consumers, the metrics
// reporter and the HTTP server. Nothing runs until Run is called.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, handlers task.Handlers) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		emitter: events.NewInMemoryEventEmitter(logger),
	}

	// Terminal tasks are kept for lookups after they leave the scheduler
	var err error
	app.history, err = task.NewHistory(cfg.Scheduler.HistorySize, logger)
	if err != nil {
		return nil, err
	}
	app.emitter.RegisterHandler(app.history,
		events.TypeTaskCompleted, events.TypeTaskFailed, events.TypeTaskCancelled)

	// Create the scheduler and let it consume task.requested events
	app.scheduler, err = task.New(cfg.Scheduler.TaskConfig(), handlers, app.emitter, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	app.emitter.RegisterHandler(task.NewTaskRequestEventHandler(app.scheduler, logger), events.TypeTaskRequested)

	// Metrics always go to the log; the file and store sinks are optional
	sinks := []metrics.Sink{metrics.NewLogSink(logger, slog.LevelDebug)}
	if cfg.Metrics.File.Path != "" {
		sinks = append(sinks, metrics.NewFileSink(metrics.FileSinkConfig{
			Path:       cfg.Metrics.File.Path,
			MaxSizeMB:  cfg.Metrics.File.MaxSizeMB,
			MaxBackups: cfg.Metrics.File.MaxBackups,
			MaxAgeDays: cfg.Metrics.File.MaxAgeDays,
			Compress:   cfg.Metrics.File.Compress,
		}))
		logger.Info("metrics file sink enabled", "path", cfg.Metrics.File.Path)
	}
	if cfg.Metrics.Store.Driver != "" {
		app.snapshots, err = openSnapshotStore(ctx, cfg.Metrics.Store, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, metrics.NewStoreSink(app.snapshots, cfg.Metrics.Retention, logger))
		logger.Info("metrics store sink enabled",
			"driver", cfg.Metrics.Store.Driver,
			"retention", cfg.Metrics.Retention)
	}
	app.reporter = metrics.NewReporter(app.scheduler, app.emitter, cfg.Metrics.Interval, logger, sinks...)

	// Set up HTTP routes
	routes := api.RouterConfig{
		Tasks:  api.NewTaskHandler(app.scheduler, app.history),
		Events: api.NewEventHandler(app.emitter),
		Logger: logger,
	}
	if app.snapshots != nil {
		routes.Metrics = api.NewMetricsHandler(app.snapshots)
	}
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(routes),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("application initialized",
		"pools", len(cfg.Scheduler.Pools),
		"sinks", len(sinks))
	return app, nil
}

// openSnapshotStore opens the configured SQL store. SQLite databases are
// migrated on open; Postgres expects `server migrate up` to have run.
func openSnapshotStore(ctx context.Context, cfg config.StoreSinkConfig, logger *slog.Logger) (store.SnapshotStore, error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.OpenSnapshotStore(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite metrics store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := postgres.OpenSnapshotStore(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres metrics store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnsupportedDriver, cfg.Driver)
	}
}

// listen binds the HTTP listener. Run calls it when the caller has not.
func (app *application) listen() error {
	if app.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", app.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.server.Addr, err)
	}
	app.listener = ln
	return nil
}

// Run starts the scheduler, the reporter and the HTTP server and blocks
// until ctx is cancelled or the server fails. Shutdown drains the scheduler
// first, then takes a final metrics report, then stops the HTTP server.
func (app *application) Run(ctx context.Context) error {
	if err := app.listen(); err != nil {
		return err
	}
	if err := app.scheduler.Start(); err != nil {
		_ = app.listener.Close()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// The reporter outlives ctx so its final report sees the drained scheduler.
	reporterCtx, stopReporter := context.WithCancel(context.WithoutCancel(ctx))
	defer stopReporter()

	// Any goroutine failing cancels gctx and starts the shutdown below
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.reporter.Run(reporterCtx)
	})

	g.Go(func() error {
		app.logger.Info("starting server", "addr", app.listener.Addr().String())
		if err := app.server.Serve(app.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down")

		// Drain first, then stop the reporter so its final report sees the result
		err := app.drainScheduler()
		stopReporter()

		// Finally stop accepting HTTP requests
		httpCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if shutdownErr := app.server.Shutdown(httpCtx); shutdownErr != nil {
			app.logger.Error("server shutdown failed", "error", shutdownErr)
			err = errors.Join(err, fmt.Errorf("server shutdown failed: %w", shutdownErr))
		}
		return err
	})

	err := g.Wait()
	app.cleanup()
	return err
}

// drainScheduler stops the scheduler within the configured drain bound. An
// elapsed bound is logged rather than returned: the abandoned tasks are
// already reported as cancelled.
func (app *application) drainScheduler() error {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Scheduler.ShutdownTimeout+shutdownGrace)
	defer cancel()

	err := app.scheduler.Shutdown(ctx)
	switch {
	case err == nil:
		app.logger.Info("scheduler drained")
		return nil
	case errors.Is(err, task.ErrDrainTimeout):
		app.logger.Warn("scheduler drain bound elapsed", "error", err)
		return nil
	default:
		app.logger.Error("scheduler shutdown failed", "error", err)
		return fmt.Errorf("scheduler shutdown failed: %w", err)
	}
}

// cleanup releases the resources left after Run. It closes every metrics
// sink, including the snapshot store.
func (app *application) cleanup() {
	if err := app.reporter.Close(); err != nil {
		app.logger.Error("error closing metrics sinks", "error", err)
	}
	app.logger.Info("application shutdown completed",
		"reports", app.reporter.Reports(),
		"sink_errors", app.reporter.SinkErrors())
}
