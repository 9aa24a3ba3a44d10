package httpapi

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks HTTP request counts, durations and in-flight gauges
// using the canonical Go Prometheus client.
type Metrics struct {
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	inFlight  *prometheus.GaugeVec
}

// NewMetrics registers the HTTP metric families with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Number of HTTP requests received",
		}, []string{"method", "path", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests executed",
		}, []string{"method", "path", "status"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of requests that are currently in flight",
		}, []string{"path"}),
	}
}

// Track records one completed request.
func (m *Metrics) Track(method, path string, status int, elapsed time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.requests.WithLabelValues(method, path, statusLabel).Inc()
	m.durations.WithLabelValues(method, path, statusLabel).Observe(elapsed.Seconds())
}

// IncInFlight increments the in-flight gauge for path.
func (m *Metrics) IncInFlight(path string) {
	m.inFlight.WithLabelValues(path).Inc()
}

// DecInFlight decrements the in-flight gauge for path.
func (m *Metrics) DecInFlight(path string) {
	m.inFlight.WithLabelValues(path).Dec()
}
