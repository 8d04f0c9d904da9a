// Package metrics provides Prometheus metrics for the coordinator.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "dungeonmind"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Session metrics
var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of sessions in the registry",
		},
	)

	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of sessions created",
		},
	)

	SessionsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "expired_total",
			Help:      "Total number of idle sessions removed",
		},
	)

	ToolStateUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "tool_state_updates_total",
			Help:      "Total number of tool state merges by tool",
		},
		[]string{"tool"},
	)
)

// Project metrics
var (
	ProjectOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projects",
			Name:      "operations_total",
			Help:      "Total number of project operations by tool, operation, and result",
		},
		[]string{"tool", "op", "result"},
	)

	PointerSyncFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projects",
			Name:      "pointer_sync_failures_total",
			Help:      "Active-project pointer writes that failed after the project was persisted",
		},
		[]string{"tool", "op"},
	)
)

// SessionObserver feeds session registry events into the session metrics.
type SessionObserver struct{}

func (SessionObserver) SessionCreated() {
	SessionsCreatedTotal.Inc()
	SessionsActive.Inc()
}

func (SessionObserver) SessionsExpired(n int) {
	SessionsExpiredTotal.Add(float64(n))
	SessionsActive.Sub(float64(n))
}

func (SessionObserver) ToolStateUpdated(tool string) {
	ToolStateUpdatesTotal.WithLabelValues(tool).Inc()
}

// ProjectRecorder feeds project operation outcomes into the project metrics.
type ProjectRecorder struct{}

func (ProjectRecorder) ProjectOperation(tool, op, result string) {
	ProjectOperationsTotal.WithLabelValues(tool, op, result).Inc()
}

func (ProjectRecorder) PointerSyncFailed(tool, op string) {
	PointerSyncFailuresTotal.WithLabelValues(tool, op).Inc()
}

// StatusLabel formats an HTTP status for the status label.
func StatusLabel(status int) string {
	return strconv.Itoa(status)
}
