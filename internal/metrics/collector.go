// Package metrics exposes Prometheus metrics for negotiations and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiaot623/dealroom/internal/domain"
)

// Collector holds the service metrics. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	// Negotiation metrics
	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	sessionRounds    prometheus.Histogram
	messagesTotal    *prometheus.CounterVec
	auditFailures    *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewCollector registers the metrics on a fresh registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newCollector(namespace, reg)
}

func newCollector(namespace string, reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)
	c := &Collector{registry: reg}

	c.sessionsStarted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Total number of negotiation sessions started",
	})

	c.sessionsFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Total number of negotiation sessions by final status",
		},
		[]string{"status"},
	)

	c.sessionsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of negotiation sessions currently running",
	})

	c.sessionRounds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_rounds",
		Help:      "Half-turns taken by finished sessions",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})

	c.messagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of signed messages appended to session logs",
		},
		[]string{"type"},
	)

	c.auditFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit log calls that failed",
		},
		[]string{"op"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return c
}

// SessionStarted records a new session.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.sessionsStarted.Inc()
	c.sessionsActive.Inc()
}

// SessionFinished records a session reaching a terminal status.
func (c *Collector) SessionFinished(status domain.SessionStatus, rounds int) {
	if c == nil {
		return
	}
	c.sessionsFinished.WithLabelValues(string(status)).Inc()
	c.sessionsActive.Dec()
	c.sessionRounds.Observe(float64(rounds))
}

// MessageLogged records a message appended to a session log.
func (c *Collector) MessageLogged(t domain.MessageType) {
	if c == nil {
		return
	}
	c.messagesTotal.WithLabelValues(string(t)).Inc()
}

// AuditFailure records a failed audit log call.
func (c *Collector) AuditFailure(op string) {
	if c == nil {
		return
	}
	c.auditFailures.WithLabelValues(op).Inc()
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Gatherer exposes the underlying registry.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
