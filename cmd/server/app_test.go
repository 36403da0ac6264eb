package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/taskforge/internal/api"
	"github.com/phrazzld/taskforge/internal/config"
	"github.com/phrazzld/taskforge/internal/platform/logger"
	"github.com/phrazzld/taskforge/internal/platform/sqlite"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "debug"},
		Scheduler: config.SchedulerConfig{
			Pools:                map[string]int{task.CategoryGeneral: 1, task.CategoryAI: 1},
			TickInterval:         10 * time.Millisecond,
			MaxAttempts:          2,
			ShutdownTimeout:      2 * time.Second,
			ShutdownPollInterval: 10 * time.Millisecond,
			HeartbeatInterval:    50 * time.Millisecond,
			OrphanPolicy:         string(task.OrphanFail),
			EventBuffer:          64,
			HistorySize:          16,
		},
		Metrics: config.MetricsConfig{
			Interval: 50 * time.Millisecond,
			File:     config.FileSinkConfig{Path: filepath.Join(t.TempDir(), "metrics.jsonl"), MaxSizeMB: 1},
			Store: config.StoreSinkConfig{
				Driver: "sqlite",
				DSN:    filepath.Join(t.TempDir(), "metrics.db"),
			},
		},
	}
}

func TestApplicationRun(t *testing.T) {
	cfg := testAppConfig(t)
	log, buf := logger.GetTestLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApplication(ctx, cfg, log, demoHandlers(cfg.Scheduler.Pools))
	require.NoError(t, err)
	app.server.Addr = "127.0.0.1:0"
	require.NoError(t, app.listen())
	base := "http://" + app.listener.Addr().String()

	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	body := bytes.NewBufferString(`{"category":"general","payload":{"duration_ms":5}}`)
	resp, err := http.Post(base+"/api/tasks", "application/json", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var submitted api.SubmitTaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("%s/api/tasks/%s", base, submitted.ID))
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		var got api.TaskResponse
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&got) != nil {
			return false
		}
		return got.State == string(task.StateCompleted)
	}, 5*time.Second, 20*time.Millisecond)

	// Events posted over HTTP reach the scheduler through the emitter.
	resp, err = http.Post(base+"/api/events", "application/json",
		bytes.NewBufferString(`{"type":"task.requested","payload":{"category":"general","payload":{"duration_ms":5}}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/status")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		var st api.StatusResponse
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&st) != nil {
			return false
		}
		return st.Tasks.Completed == 2
	}, 5*time.Second, 20*time.Millisecond)

	// The snapshot routes are mounted because a store is configured.
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/metrics/snapshots/latest")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	logger.AssertLogContains(t, buf, "scheduler drained")
	logger.AssertLogContains(t, buf, "application shutdown completed")

	s, err := sqlite.OpenSnapshotStore(context.Background(), cfg.Metrics.Store.DSN, log)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	latest, err := s.LatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "terminated", latest.Phase)
	assert.Equal(t, 2, latest.TasksCompleted)
}

func TestApplicationWithoutStore(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Metrics.Store = config.StoreSinkConfig{}
	cfg.Metrics.File = config.FileSinkConfig{}
	log, _ := logger.GetTestLogger(t)

	app, err := newApplication(context.Background(), cfg, log, demoHandlers(cfg.Scheduler.Pools))
	require.NoError(t, err)
	assert.Nil(t, app.snapshots)
}

func TestOpenSnapshotStoreUnsupportedDriver(t *testing.T) {
	log, _ := logger.GetTestLogger(t)
	_, err := openSnapshotStore(context.Background(), config.StoreSinkConfig{Driver: "mysql", DSN: "x"}, log)
	assert.ErrorIs(t, err, store.ErrUnsupportedDriver)
}

func TestNewApplicationRejectsMissingHandler(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Metrics.Store = config.StoreSinkConfig{}
	log, _ := logger.GetTestLogger(t)

	_, err := newApplication(context.Background(), cfg, log, task.Handlers{task.CategoryGeneral: task.EchoHandler})
	assert.Error(t, err)
}
