// Package telemetry exposes dispatch metrics to Prometheus and sets up
// OpenTelemetry tracing.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/campuscloset/internal/dispatch"
	"github.com/roach88/campuscloset/internal/engine"
	"github.com/roach88/campuscloset/internal/ir"
	"github.com/roach88/campuscloset/internal/routes"
)

const namespace = "campuscloset"

// Metrics is a dispatch.Observer that records Prometheus metrics.
//
// Each Metrics owns its registry, so tests can create as many as they
// like without duplicate registration panics.
type Metrics struct {
	dispatch.NopObserver

	registry *prometheus.Registry

	// DispatchesTotal counts dispatches.
	// Labels: concept, action, route (included, excluded, unclassified), outcome (success, error)
	DispatchesTotal *prometheus.CounterVec

	// DispatchSeconds measures dispatch latency, syncs included.
	// Labels: concept, action
	DispatchSeconds *prometheus.HistogramVec

	// UnclassifiedTotal counts requests to routes in neither route list.
	// Labels: route
	UnclassifiedTotal *prometheus.CounterVec

	// GatewayFailuresTotal counts failed gateway announcements.
	GatewayFailuresTotal prometheus.Counter

	// SyncEffectsTotal counts sync effects.
	// Labels: rule, outcome (success, error)
	SyncEffectsTotal *prometheus.CounterVec
}

// NewMetrics creates the metrics on a fresh registry that also carries
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		DispatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Dispatched actions by route class and outcome.",
		}, []string{"concept", "action", "route", "outcome"}),
		DispatchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time to dispatch an action, including its syncs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"concept", "action"}),
		UnclassifiedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "unclassified_total",
			Help:      "Requests to routes that are neither included nor excluded.",
		}, []string{"route"}),
		GatewayFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "gateway_failures_total",
			Help:      "Gateway calls for excluded routes that failed.",
		}),
		SyncEffectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "effects_total",
			Help:      "Sync effects run, by rule and outcome.",
		}, []string{"rule", "outcome"}),
	}
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Dispatched implements dispatch.Observer.
func (m *Metrics) Dispatched(_ context.Context, inv ir.Invocation, class routes.Class, out ir.Outcome, elapsed time.Duration) {
	conceptName, actionName, _ := ir.ParseActionRef(string(inv.ActionURI))
	outcome := "success"
	if !out.Success {
		outcome = "error"
	}
	m.DispatchesTotal.WithLabelValues(conceptName, actionName, class.String(), outcome).Inc()
	m.DispatchSeconds.WithLabelValues(conceptName, actionName).Observe(elapsed.Seconds())
}

// Unclassified implements dispatch.Observer.
func (m *Metrics) Unclassified(_ context.Context, inv ir.Invocation) {
	m.UnclassifiedTotal.WithLabelValues(string(inv.ActionURI)).Inc()
}

// GatewayFailed implements dispatch.Observer.
func (m *Metrics) GatewayFailed(context.Context, ir.Invocation, error) {
	m.GatewayFailuresTotal.Inc()
}

// SyncReport implements dispatch.Observer.
func (m *Metrics) SyncReport(_ context.Context, _ ir.Invocation, report engine.Report) {
	for _, e := range report.Effects {
		outcome := "success"
		if !e.OK() {
			outcome = "error"
		}
		m.SyncEffectsTotal.WithLabelValues(e.Rule, outcome).Inc()
	}
}
