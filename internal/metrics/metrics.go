// Package metrics provides Prometheus instrumentation for the portfolio gateway.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpstreamRequests counts backend calls by logical endpoint and outcome
	// (ok, business, not_found, rate_limited, timeout, network, server, request).
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_upstream_requests_total",
		Help: "Total requests made to the portfolio backend",
	}, []string{"endpoint", "outcome"})

	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_upstream_latency_seconds",
		Help:    "Portfolio backend request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// OrdersTotal counts order submissions by side, type and result.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_orders_total",
		Help: "Order submissions by outcome",
	}, []string{"side", "type", "result"})

	// ValidationRejections counts orders stopped before reaching the backend.
	ValidationRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_order_validation_rejections_total",
		Help: "Orders rejected by local validation",
	}, []string{"code"})

	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_poll_cycles_total",
		Help: "Completed refresh cycles by result",
	}, []string{"result"})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_poll_cycle_seconds",
		Help:    "Refresh cycle duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// PortfolioValue is the total portfolio value from the last cycle.
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pm_portfolio_value",
		Help: "Total portfolio value as of the last refresh",
	})

	WatchlistSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pm_watchlist_symbols",
		Help: "Number of symbols on the watchlist",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pm_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_http_request_duration_seconds",
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

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by chi route pattern so /stocks/AAPL and /stocks/MSFT
// share a series. Unmatched requests collapse into one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Hijack lets the WebSocket upgrader take over the connection through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", w.ResponseWriter)
	}
	return h.Hijack()
}
