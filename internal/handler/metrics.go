package handler

import (
	"log/slog"
	"net/http"

	"github.com/tellus/tellus/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
	logger      *slog.Logger
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter, logger: logger}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := metrics.WritePrometheus(w, h.snapshotter.Snapshot()); err != nil {
		h.logger.Warn("write metrics", "error", err)
	}
}
