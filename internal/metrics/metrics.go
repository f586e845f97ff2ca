// Package metrics exposes Prometheus instrumentation for the gateway.
//
// All methods are safe to call on a nil *Collector, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry and the gateway's metric families.
type Collector struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionsActive  prometheus.Gauge
	sessionsOpened  *prometheus.CounterVec
	streamDeltas    *prometheus.CounterVec
	errors          *prometheus.CounterVec
}

// New registers the metric families under namespace on a fresh registry.
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = "gateway"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Chat requests handled, by dialect, mode and HTTP status.",
		}, []string{"dialect", "mode", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Wall time of chat requests.",
			// LLM turns range from sub-second to minutes.
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"dialect", "mode"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Backend sessions currently open.",
		}),
		sessionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Backend session open attempts by result.",
		}, []string{"result"}),
		streamDeltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_deltas_total",
			Help:      "Text deltas relayed to streaming clients.",
		}, []string{"dialect"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors returned to clients by error type.",
		}, []string{"type"}),
	}
	c.registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.sessionsActive,
		c.sessionsOpened,
		c.streamDeltas,
		c.errors,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished chat request.
func (c *Collector) ObserveRequest(dialect string, streaming bool, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	mode := modeLabel(streaming)
	c.requests.WithLabelValues(dialect, mode, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(dialect, mode).Observe(elapsed.Seconds())
}

// SessionOpened records an open attempt.
func (c *Collector) SessionOpened(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.sessionsOpened.WithLabelValues("error").Inc()
		return
	}
	c.sessionsOpened.WithLabelValues("ok").Inc()
	c.sessionsActive.Inc()
}

// SessionClosed records a destroyed session.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

// StreamDelta records one relayed delta.
func (c *Collector) StreamDelta(dialect string) {
	if c == nil {
		return
	}
	c.streamDeltas.WithLabelValues(dialect).Inc()
}

// Error records an error sent to a client.
func (c *Collector) Error(errorType string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(errorType).Inc()
}

func modeLabel(streaming bool) string {
	if streaming {
		return "stream"
	}
	return "sync"
}
