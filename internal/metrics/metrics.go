// Package metrics provides Prometheus instrumentation for the market engine.
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
	// OrdersTotal counts orders placed, partitioned by side.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_orders_total",
		Help: "Total number of orders placed",
	}, []string{"side"})

	// TradesTotal counts executed trades.
	TradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_trades_total",
		Help: "Total number of trades executed",
	})

	// TradeVolume tracks cumulative traded quantity per asset.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_trade_volume_total",
		Help: "Cumulative traded quantity in units",
	}, []string{"asset_id"})

	// CancellationsTotal counts cancelled orders.
	CancellationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "market_cancellations_total",
		Help: "Total number of orders cancelled",
	})

	// MatchLatency is the submission-to-settled latency of the matching loop.
	MatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "market_match_latency_seconds",
		Help:    "Order matching latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "market_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "market_http_request_duration_seconds",
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

		// Use the raw path for the label to avoid route-pattern coupling.
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
