// Package metrics exposes Prometheus collectors for the HTTP layer, the
// notes service and its cache.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/kuitang/tagnotes/internal/notes"
	"github.com/kuitang/tagnotes/internal/obs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tagnotes"

// Metrics holds the collectors. Build with New and register once.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	Operations   *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	CacheLookups *prometheus.CounterVec
}

var _ notes.Observer = (*Metrics)(nil)

func New() *Metrics {
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by method, route and status."},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency by method and route.", Buckets: prometheus.DefBuckets},
			[]string{"method", "route"},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "note_operations_total", Help: "Notes service operations by operation and result code."},
			[]string{"op", "code"},
		),
		OpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "note_operation_duration_seconds", Help: "Notes service operation latency.", Buckets: prometheus.DefBuckets},
			[]string{"op"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "cache_lookups_total", Help: "Cache lookups by kind and result."},
			[]string{"kind", "result"},
		),
	}
}

// RegisterCollectors registers every collector with reg.
func (m *Metrics) RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(m.HTTPRequests, m.HTTPDuration, m.Operations, m.OpDuration, m.CacheLookups)
}

// ObserveOp implements notes.Observer.
func (m *Metrics) ObserveOp(op, code string, elapsed time.Duration) {
	m.Operations.WithLabelValues(op, code).Inc()
	m.OpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveCache implements notes.Observer.
func (m *Metrics) ObserveCache(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// Middleware records request count and latency. The route label is the
// matched ServeMux pattern, so ids never become label values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped, rec := obs.NewResponseRecorder(w)
		next.ServeHTTP(wrapped, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.StatusCode())).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
