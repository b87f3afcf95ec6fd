package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trustscope"

// Registry holds the service collectors on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	symbolLookups *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	feedCache     *prometheus.CounterVec
}

// New creates a Registry with all collectors registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		symbolLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "symbol",
			Name:      "lookups_total",
			Help:      "Token symbol lookups by outcome.",
		}, []string{"outcome"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "decisions_total",
			Help:      "Attestation reconciliation decisions.",
		}, []string{"decision"}),
		feedCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "reads_total",
			Help:      "Response cache reads by key and state.",
		}, []string{"key", "state"}),
	}

	r.reg.MustRegister(
		r.httpInFlight,
		r.httpRequests,
		r.httpDuration,
		r.symbolLookups,
		r.decisions,
		r.feedCache,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return r
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) IncInFlight() { r.httpInFlight.Inc() }
func (r *Registry) DecInFlight() { r.httpInFlight.Dec() }

// RecordHTTPRequest records one handled request.
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.httpRequests.WithLabelValues(method, path, status).Inc()
	r.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (r *Registry) SymbolHit()     { r.symbolLookups.WithLabelValues("hit").Inc() }
func (r *Registry) SymbolMiss()    { r.symbolLookups.WithLabelValues("miss").Inc() }
func (r *Registry) SymbolFailure() { r.symbolLookups.WithLabelValues("failure").Inc() }

// RecordDecision counts a reconciliation decision.
func (r *Registry) RecordDecision(decision string) {
	r.decisions.WithLabelValues(decision).Inc()
}

// RecordCacheRead counts a response cache read; state is fresh, stale or miss.
func (r *Registry) RecordCacheRead(key, state string) {
	r.feedCache.WithLabelValues(key, state).Inc()
}
