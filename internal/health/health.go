package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/cortexuvula/roomsync/internal/metrics"
	"github.com/cortexuvula/roomsync/internal/registry"
	"github.com/cortexuvula/roomsync/internal/ws"
)

// Response is the JSON response from the /health endpoint.
type Response struct {
	Status            string   `json:"status"`
	Uptime            string   `json:"uptime"`
	ActiveConnections int      `json:"active_connections"`
	ActiveRooms       int      `json:"active_rooms"`
	StoredRooms       int      `json:"stored_rooms"`
	StoreReachable    bool     `json:"store_reachable"`
	Version           string   `json:"version,omitempty"`
	Timestamp         string   `json:"timestamp"`
	Details           *Details `json:"details,omitempty"`
}

// Details contains extended health information.
type Details struct {
	TotalConnections int64   `json:"total_connections"`
	TotalMessages    int64   `json:"total_messages"`
	MemoryMB         float64 `json:"memory_mb"`
}

// Counter is the slice of the room store the health check probes.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Handler serves the health check endpoint.
type Handler struct {
	startTime time.Time
	stats     *ws.Stats
	store     Counter
	registry  *registry.Registry
	metrics   *metrics.Metrics // optional, nil if metrics disabled
	version   string
	detailed  bool
}

// NewHandler creates a new health check handler.
func NewHandler(stats *ws.Stats, store Counter, reg *registry.Registry, version string, detailed bool) *Handler {
	return &Handler{
		startTime: time.Now(),
		stats:     stats,
		store:     store,
		registry:  reg,
		version:   version,
		detailed:  detailed,
	}
}

// SetMetrics sets the optional Prometheus metrics.
func (h *Handler) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// ServeHTTP handles health check requests.
// The health listener is separate from the public one so local monitoring
// tools (systemd, Prometheus) can poll it without exposing it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stored, err := h.store.Count(ctx)
	storeOK := err == nil
	if err != nil {
		slog.Warn("health: room store unavailable", "error", err)
	}

	status := "ok"
	httpCode := http.StatusOK
	if !storeOK {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
		if h.metrics != nil {
			h.metrics.ErrorsTotal.WithLabelValues("store_unavailable").Inc()
		}
	}

	resp := Response{
		Status:            status,
		Uptime:            time.Since(h.startTime).Round(time.Second).String(),
		ActiveConnections: h.stats.ConnectionCount(),
		ActiveRooms:       h.registry.RoomCount(),
		StoredRooms:       stored,
		StoreReachable:    storeOK,
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
	}

	if h.detailed {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		resp.Version = h.version
		resp.Details = &Details{
			TotalConnections: h.stats.TotalConnections(),
			TotalMessages:    h.stats.TotalMessages(),
			MemoryMB:         float64(memStats.Alloc) / 1024 / 1024,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	json.NewEncoder(w).Encode(resp)
}
