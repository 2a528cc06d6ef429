package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/media-gate/internal/ingest"
)

// HealthResponse reports overall service health: configuration facts as
// top-level fields, check outcomes in Checks.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StoreType     string            `json:"store_type"`
	BackendURL    string            `json:"backend_url"`
	Checks        map[string]string `json:"checks"`
	Watcher       *ingest.Status    `json:"watcher,omitempty"`
}

// HistoryChecker is the slice of the history store the health endpoint needs.
type HistoryChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves GET /api/v1/health. History and the watcher are
// optional, so a missing one reports "not_configured" rather than failing
// the check.
type HealthHandler struct {
	storeType string
	backend   string
	history   HistoryChecker
	watcher   *ingest.Watcher
	version   string
	startTime time.Time
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(storeType, backend string, history HistoryChecker, watcher *ingest.Watcher, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		storeType: storeType,
		backend:   backend,
		history:   history,
		watcher:   watcher,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	if h.history != nil {
		if err := h.history.HealthCheck(r.Context()); err != nil {
			checks["history"] = "error"
			status = "degraded"
		} else {
			checks["history"] = "ok"
		}
	} else {
		checks["history"] = "not_configured"
	}

	var ws *ingest.Status
	if h.watcher != nil {
		s := h.watcher.CurrentStatus()
		ws = &s
		checks["watcher"] = s.Status
	} else {
		checks["watcher"] = "not_configured"
	}

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		StoreType:     h.storeType,
		BackendURL:    h.backend,
		Checks:        checks,
		Watcher:       ws,
	})
}
