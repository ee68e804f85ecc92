// Package metrics exposes Prometheus collectors for the HTTP transport and
// the mentorship domain events.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTORS
// Each Metrics instance owns its registry; nothing touches the default registerer.
// ══════════════════════════════════════════════════════════════════════════════

const namespace = "heritage"

// Metrics is the collector set.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge
	HTTPRateLimited     prometheus.Counter

	// Domain
	DomainEventsTotal  *prometheus.CounterVec
	DecisionsTotal     *prometheus.CounterVec
	DashboardCacheHits *prometheus.CounterVec

	service string
}

// New creates and registers the collector set for a service. Characters
// not allowed in metric names are replaced with underscores.
func New(service string) *Metrics {
	service = sanitizeName(service)
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		service:  service,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		HTTPRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),

		DomainEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "domain_events_total",
			Help:      "Domain events observed on the event bus.",
		}, []string{"type"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "application_decisions_total",
			Help:      "Application decisions by resulting status.",
		}, []string{"status"}),
		DashboardCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "dashboard_reads_total",
			Help:      "Dashboard reads split by cache outcome.",
		}, []string{"source"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPInFlight,
		m.HTTPRateLimited,
		m.DomainEventsTotal,
		m.DecisionsTotal,
		m.DashboardCacheHits,
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ─────────────────────────────────────────────────────────────────────────────
// Recorders
// ─────────────────────────────────────────────────────────────────────────────

// RecordHTTPRequest records a finished request. route is the mux pattern,
// never the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDashboardRead counts a dashboard read served from cache or storage.
func (m *Metrics) RecordDashboardRead(fromCache bool) {
	source := "storage"
	if fromCache {
		source = "cache"
	}
	m.DashboardCacheHits.WithLabelValues(source).Inc()
}

// WatchEventBus exposes the bus counters kept by the bus itself.
func (m *Metrics) WatchEventBus(stats func() (executions, failures int64)) error {
	return m.registerPair("event_handler", "executions", "failures",
		"Event handler executions.", "Event handler executions that failed or panicked.", stats)
}

// WatchForwarder exposes the broker forwarder counters.
func (m *Metrics) WatchForwarder(stats func() (forwarded, dropped int64)) error {
	return m.registerPair("events", "forwarded", "dropped",
		"Events written to the broker.", "Events the broker forwarder gave up on.", stats)
}

func (m *Metrics) registerPair(prefix, first, second, firstHelp, secondHelp string, stats func() (int64, int64)) error {
	a := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: m.service,
		Name:      prefix + "_" + first + "_total",
		Help:      firstHelp,
	}, func() float64 {
		v, _ := stats()
		return float64(v)
	})
	b := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: m.service,
		Name:      prefix + "_" + second + "_total",
		Help:      secondHelp,
	}, func() float64 {
		_, v := stats()
		return float64(v)
	})

	if err := m.registry.Register(a); err != nil {
		return err
	}
	return m.registry.Register(b)
}

// EventHandler counts every domain event; decisions are split by status.
func (m *Metrics) EventHandler() shared.EventHandler {
	return func(event shared.Event) error {
		m.DomainEventsTotal.WithLabelValues(string(event.EventType())).Inc()

		if event.EventType() == shared.EventApplicationDecided {
			if status, ok := event.Payload()["status"].(string); ok {
				m.DecisionsTotal.WithLabelValues(status).Inc()
			}
		}
		return nil
	}
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
