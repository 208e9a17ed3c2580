// Package metrics provides Prometheus metrics for the lifecycle engine.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Nil until Init runs; record functions are no-ops before then.
	registrarCalls    atomic.Pointer[prometheus.CounterVec]
	registrarDuration atomic.Pointer[prometheus.HistogramVec]
	syncOutcomes      atomic.Pointer[prometheus.CounterVec]
	transitions       atomic.Pointer[prometheus.CounterVec]
	httpRequests      atomic.Pointer[prometheus.CounterVec]
	httpDuration      atomic.Pointer[prometheus.HistogramVec]

	gatherer atomic.Value // prometheus.Gatherer
)

// Init registers all metrics with reg. Call once at startup.
func Init(reg prometheus.Registerer) error {
	registrarCallsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domains",
			Subsystem: "registrar",
			Name:      "calls_total",
			Help:      "Registrar API calls by registrar, operation and outcome",
		},
		[]string{"registrar", "operation", "outcome"},
	)
	registrarDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "domains",
			Subsystem: "registrar",
			Name:      "call_duration_seconds",
			Help:      "Registrar API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"registrar", "operation"},
	)
	syncOutcomesVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domains",
			Subsystem: "sync",
			Name:      "outcomes_total",
			Help:      "Synchronization results: corrected, unchanged, failed or conflict",
		},
		[]string{"result"},
	)
	transitionsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domains",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Applied status transitions",
		},
		[]string{"from", "to", "kind"},
	)
	httpRequestsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "domains",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the admin API",
		},
		[]string{"method", "route", "status"},
	)
	httpDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "domains",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	for name, c := range map[string]prometheus.Collector{
		"registrarCalls":    registrarCallsVec,
		"registrarDuration": registrarDurationVec,
		"syncOutcomes":      syncOutcomesVec,
		"transitions":       transitionsVec,
		"httpRequests":      httpRequestsVec,
		"httpDuration":      httpDurationVec,
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}

	registrarCalls.Store(registrarCallsVec)
	registrarDuration.Store(registrarDurationVec)
	syncOutcomes.Store(syncOutcomesVec)
	transitions.Store(transitionsVec)
	httpRequests.Store(httpRequestsVec)
	httpDuration.Store(httpDurationVec)
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer.Store(g)
	}
	return nil
}

// ObserveRegistrarCall records one registrar API call
func ObserveRegistrarCall(registrar, operation string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if c := registrarCalls.Load(); c != nil {
		c.WithLabelValues(registrar, operation, outcome).Inc()
	}
	if h := registrarDuration.Load(); h != nil {
		h.WithLabelValues(registrar, operation).Observe(elapsed.Seconds())
	}
}

// RecordSync counts a synchronization result
func RecordSync(result string) {
	if c := syncOutcomes.Load(); c != nil {
		c.WithLabelValues(result).Inc()
	}
}

// RecordTransition counts an applied status transition
func RecordTransition(from, to, kind string) {
	if c := transitions.Load(); c != nil {
		c.WithLabelValues(from, to, kind).Inc()
	}
}

// RecordRequest records an HTTP request against its route template
func RecordRequest(method, route, status string, elapsed time.Duration) {
	if c := httpRequests.Load(); c != nil {
		c.WithLabelValues(method, route, status).Inc()
	}
	if h := httpDuration.Load(); h != nil {
		h.WithLabelValues(method, route).Observe(elapsed.Seconds())
	}
}

// Handler serves the registry passed to Init, or the default registry
func Handler() http.Handler {
	if g, ok := gatherer.Load().(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
