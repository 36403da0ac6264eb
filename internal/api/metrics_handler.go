package api

import (
	"net/http"
	"time"

	"github.com/phrazzld/taskforge/internal/api/shared"
	"github.com/phrazzld/taskforge/internal/metrics"
	"github.com/phrazzld/taskforge/internal/store"
)

// DefaultSnapshotLimit bounds GET /api/metrics/snapshots when no limit is given.
const DefaultSnapshotLimit = 100

// MetricsHandler serves stored metrics snapshots.
type MetricsHandler struct {
	store store.SnapshotStore
	now   func() time.Time
}

// NewMetricsHandler creates a MetricsHandler reading from s.
func NewMetricsHandler(s store.SnapshotStore) *MetricsHandler {
	return &MetricsHandler{store: s, now: time.Now}
}

// GetLatestSnapshot handles GET /api/metrics/snapshots/latest requests.
func (h *MetricsHandler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	record, err := h.store.LatestSnapshot(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load metrics snapshot")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, metrics.FromRecord(record))
}

// ListSnapshots handles GET /api/metrics/snapshots?since=15m&limit=50 requests.
// since accepts an RFC 3339 time or a duration before now.
func (h *MetricsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	since, err := getQueryTime(r, "since", h.now())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	limit, err := getQueryInt(r, "limit", DefaultSnapshotLimit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	records, err := h.store.ListSnapshots(r.Context(), since, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list metrics snapshots")
		return
	}

	resp := SnapshotListResponse{Snapshots: make([]metrics.Snapshot, 0, len(records))}
	for _, record := range records {
		resp.Snapshots = append(resp.Snapshots, metrics.FromRecord(record))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
