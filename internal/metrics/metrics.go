// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FillsTotal counts fills, partitioned by symbol and side.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbroker_fills_total",
		Help: "Total number of order fills",
	}, []string{"symbol", "side"})

	// RejectionsTotal counts rejected orders by reason.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbroker_rejections_total",
		Help: "Total number of rejected orders",
	}, []string{"reason"})

	// ClosuresTotal counts position closures by reason.
	ClosuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbroker_closures_total",
		Help: "Total number of position closures",
	}, []string{"reason"})

	// OpenPositions tracks currently open positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperbroker_open_positions",
		Help: "Number of currently open positions",
	})

	// Equity tracks the latest derived account equity.
	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperbroker_equity",
		Help: "Current account equity",
	})

	// TickLatency is the per-tick processing latency.
	TickLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperbroker_tick_latency_seconds",
		Help:    "Tick processing latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"symbol"})

	// JournalRetries counts retried journal writes.
	JournalRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperbroker_journal_retries_total",
		Help: "Journal writes that needed a retry",
	})

	// WebSocketClients tracks connected observer clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperbroker_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperbroker_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperbroker_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
