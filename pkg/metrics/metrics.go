// Package metrics holds the Prometheus collectors of the orchestration core.
//
// Every recording method is safe on a nil *Metrics, so components accept an
// optional collector set and skip instrumentation when none is configured.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "waypoint"

// Breaker state values exported by the breaker gauge.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// Metrics groups the collectors.
type Metrics struct {
	registry *prometheus.Registry

	rateLimit    *prometheus.CounterVec
	retries      *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	toolDuration *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	planRuns     *prometheus.CounterVec
	turns        *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry
// together with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		rateLimit: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_decisions_total",
				Help:      "Admission decisions of the token-bucket limiter",
			},
			[]string{"scope", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Attempts made by the retry handler per service",
			},
			[]string{"service", "outcome"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per service (0 closed, 1 half-open, 2 open)",
			},
			[]string{"service"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Duration of remote tool executions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool", "outcome"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_cache_lookups_total",
				Help:      "Session result-cache lookups",
			},
			[]string{"tool", "result"},
		),
		planRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_runs_total",
				Help:      "Executed plans by name and outcome",
			},
			[]string{"plan", "outcome"},
		),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_turns_total",
				Help:      "Processed chat turns by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
	}
	reg.MustRegister(m.rateLimit, m.retries, m.breakerState, m.toolDuration, m.cacheLookups, m.planRuns, m.turns)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RateLimit records an admission decision. scope is the bucket that decided ("global" or "user").
func (m *Metrics) RateLimit(scope string, allowed bool) {
	if m == nil {
		return
	}
	o := "allowed"
	if !allowed {
		o = "throttled"
	}
	m.rateLimit.WithLabelValues(scope, o).Inc()
}

// RetryAttempt records one attempt of a retried call.
func (m *Metrics) RetryAttempt(service string, ok bool) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(service, outcome(ok)).Inc()
}

// BreakerState publishes the state of a service's breaker.
func (m *Metrics) BreakerState(service string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(service).Set(float64(state))
}

// ToolCall records the duration and outcome of a tool execution.
func (m *Metrics) ToolCall(tool string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.toolDuration.WithLabelValues(tool, outcome(ok)).Observe(d.Seconds())
}

// CacheLookup records a session cache hit or miss.
func (m *Metrics) CacheLookup(tool string, hit bool) {
	if m == nil {
		return
	}
	r := "miss"
	if hit {
		r = "hit"
	}
	m.cacheLookups.WithLabelValues(tool, r).Inc()
}

// PlanRun records a finished plan.
func (m *Metrics) PlanRun(plan string, ok bool) {
	if m == nil {
		return
	}
	m.planRuns.WithLabelValues(plan, outcome(ok)).Inc()
}

// Turn records a processed chat turn. mode is "orchestrated" or "plain".
func (m *Metrics) Turn(mode string, ok bool) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(mode, outcome(ok)).Inc()
}
