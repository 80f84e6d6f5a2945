// Package metrics exposes prometheus collectors for the backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts HTTP requests by route pattern
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clareza_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clareza_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// SessionsActive tracks one-shot sessions with a live process
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clareza_sessions_active",
			Help: "Number of one-shot sessions in progress",
		},
	)

	// SessionsTotal counts finished sessions by terminal state
	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clareza_sessions_total",
			Help: "Total number of finished bridge sessions",
		},
		[]string{"state"},
	)

	// SessionDuration tracks how long one-shot sessions run
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clareza_session_duration_seconds",
			Help:    "Session duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"state"},
	)

	// OutputLines counts routed tool output lines
	OutputLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clareza_output_lines_total",
			Help: "Tool output lines by source and routing result",
		},
		[]string{"source", "result"},
	)

	// LinesSkipped counts lines dropped for invalid encoding or read errors
	LinesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clareza_output_lines_skipped_total",
			Help: "Tool output lines that could not be decoded",
		},
		[]string{"source"},
	)

	// InteractiveRunning is 1 while an interactive process is alive
	InteractiveRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clareza_interactive_running",
			Help: "Whether an interactive tool process is running",
		},
	)

	// NotificationsPublished counts notifications accepted by the dispatcher
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clareza_notifications_published_total",
			Help: "Notifications accepted by the dispatcher",
		},
		[]string{"name"},
	)

	// NotificationsDropped counts notifications a slow subscriber missed
	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clareza_notifications_dropped_total",
			Help: "Notifications dropped because a subscriber buffer was full",
		},
	)

	// BackupsTotal counts document backups by trigger and result
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clareza_backups_total",
			Help: "Document backups created",
		},
		[]string{"trigger", "status"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request counts and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "other"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionStart increments the active session gauge
func RecordSessionStart() {
	SessionsActive.Inc()
}

// RecordSessionEnd decrements the active gauge and records the outcome
func RecordSessionEnd(state string, duration time.Duration) {
	SessionsActive.Dec()
	SessionsTotal.WithLabelValues(state).Inc()
	SessionDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordSessionRejected counts a session that failed before a process existed
func RecordSessionRejected(state string) {
	SessionsTotal.WithLabelValues(state).Inc()
}

// RecordLine counts one routed output line
func RecordLine(source, result string) {
	OutputLines.WithLabelValues(source, result).Inc()
}

// RecordLineSkipped counts one undeliverable output line
func RecordLineSkipped(source string) {
	LinesSkipped.WithLabelValues(source).Inc()
}

// SetInteractiveRunning reflects the interactive session state
func SetInteractiveRunning(running bool) {
	if running {
		InteractiveRunning.Set(1)
		return
	}
	InteractiveRunning.Set(0)
}

// RecordPublished counts a notification accepted by the dispatcher
func RecordPublished(name string) {
	NotificationsPublished.WithLabelValues(name).Inc()
}

// RecordDrop counts a notification a subscriber missed
func RecordDrop() {
	NotificationsDropped.Inc()
}

// RecordBackup counts a backup attempt
func RecordBackup(trigger string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	BackupsTotal.WithLabelValues(trigger, status).Inc()
}
