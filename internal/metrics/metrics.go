// Package metrics exposes Prometheus instruments for the auth core and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth event outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Repair types recorded by the legacy account reconciler.
const (
	RepairPassword     = "password"
	RepairLinkExisting = "link_existing"
	RepairCreateOrg    = "create_organization"
)

type Metrics struct {
	registry prometheus.Gatherer

	AuthEventsTotal     *prometheus.CounterVec
	RepairsTotal        *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the instruments and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexura_auth_events_total",
				Help: "Authentication events by organization kind, event and outcome.",
			},
			[]string{"kind", "event", "outcome"},
		),
		RepairsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexura_auth_repairs_total",
				Help: "Legacy account repairs performed at sign-in.",
			},
			[]string{"type"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nexura_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nexura_http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.AuthEventsTotal, m.RepairsTotal, m.HTTPRequestsTotal, m.HTTPRequestDuration)
	return m
}

// AuthEvent counts one event. Safe on a nil receiver.
func (m *Metrics) AuthEvent(kind, event, outcome string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(kind, event, outcome).Inc()
}

// Repair counts one reconciler repair. Safe on a nil receiver.
func (m *Metrics) Repair(repairType string) {
	if m == nil {
		return
	}
	m.RepairsTotal.WithLabelValues(repairType).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// RouteUnmatched labels requests that matched no chi route.
const RouteUnmatched = "unmatched"

// Instrument records request counts and latency labelled by chi route pattern,
// so path parameters do not explode label cardinality. Requests that match no
// route share the RouteUnmatched label; the raw path is never used.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := RouteUnmatched
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.code)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
