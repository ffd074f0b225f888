package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/depo-engine/internal/resync"
	"github.com/snarg/depo-engine/internal/watcher"
)

type HealthResponse struct {
	Status        string             `json:"status"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Checks        map[string]string  `json:"checks"`
	Resync        *resync.QueueStats `json:"resync,omitempty"`
	Watcher       *watcher.Status    `json:"watcher,omitempty"`
}

// Pinger reports database reachability.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ConnChecker reports broker connectivity.
type ConnChecker interface {
	IsConnected() bool
}

// WatcherStatusSource reports the hot folder state.
type WatcherStatusSource interface {
	Status() *watcher.Status
}

// HealthDeps are the optional components the health check reports on.
// Leave a field nil when the component is not configured.
type HealthDeps struct {
	DB      Pinger
	MQTT    ConnChecker
	Queue   ResyncQueue
	Watcher WatcherStatusSource
}

type HealthHandler struct {
	deps      HealthDeps
	version   string
	startTime time.Time
}

func NewHealthHandler(deps HealthDeps, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{deps: deps, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	if h.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.deps.DB.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks["database"] = "error"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	} else {
		checks["database"] = "not_configured"
	}

	if h.deps.MQTT != nil {
		if h.deps.MQTT.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	if h.deps.Queue != nil {
		stats := h.deps.Queue.Stats()
		resp.Resync = &stats
		checks["alignment"] = "ok"
	} else {
		checks["alignment"] = "not_configured"
	}

	if h.deps.Watcher != nil {
		ws := h.deps.Watcher.Status()
		resp.Watcher = ws
		checks["file_watcher"] = ws.Status
		if ws.Status == "stopped" {
			degrade()
		}
	} else {
		checks["file_watcher"] = "not_configured"
	}

	resp.Status = status
	WriteJSON(w, httpStatus, resp)
}
