// Package metrics exposes Prometheus instrumentation for sessions, tool
// invocations and upstream HTTP calls on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shipmcp"

// Outcome label values for the invocation counter.
const (
	OutcomeOK = "ok"
)

// Metrics holds every collector. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry         *prometheus.Registry
	invocations      *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	droppedPushes    prometheus.Counter
	upstreamDuration *prometheus.HistogramVec
}

// New creates the collectors. liveSessions is sampled on every scrape.
func New(liveSessions func() int) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool name and outcome (ok or failure kind).",
		}, []string{"tool", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_dispatch_duration_seconds",
			Help:      "Time from dispatch to result, including validation and handler execution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		droppedPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_pushes_total",
			Help:      "Results discarded because the session was gone or its stream failed.",
		}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of requests to the shipping API.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
	}

	registry.MustRegister(m.invocations, m.dispatchDuration, m.droppedPushes, m.upstreamDuration)
	if liveSessions != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Sessions currently registered.",
		}, func() float64 { return float64(liveSessions()) }))
	}

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// InvocationDone records one finished dispatch. outcome is OutcomeOK or a
// failure kind.
func (m *Metrics) InvocationDone(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(tool, outcome).Inc()
	m.dispatchDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// PushDropped records a result that could not be delivered.
func (m *Metrics) PushDropped() {
	if m == nil {
		return
	}
	m.droppedPushes.Inc()
}

// InstrumentTransport wraps rt so every upstream request is timed.
func (m *Metrics) InstrumentTransport(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if m == nil {
		return rt
	}
	return promhttp.InstrumentRoundTripperDuration(m.upstreamDuration, rt)
}
