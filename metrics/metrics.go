// Package metrics provides Prometheus metrics for the fetch, cache and
// aggregation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every collector registered by the service.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	fetchAttempts  *prometheus.CounterVec
	fetchRetries   *prometheus.CounterVec
	rateLimitWaits prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
	fanoutWarnings *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) { m.namespace = ns }
}

// WithRegistry registers collectors on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *Manager) { m.registry = reg }
}

var defaultManager = NewManager() //nolint:gochecknoglobals // process-wide metrics

// Default returns the process-wide manager.
func Default() *Manager { return defaultManager }

// NewManager creates a manager with its own registry unless one is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{namespace: "githubactivity"}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.init()
	return m
}

func (m *Manager) init() {
	auto := promauto.With(m.registry)

	m.fetchAttempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "fetch",
		Name:      "attempts_total",
		Help:      "Remote API attempts by resource and outcome",
	}, []string{"resource", "outcome"})

	m.fetchRetries = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "fetch",
		Name:      "retries_total",
		Help:      "Retries scheduled by reason",
	}, []string{"reason"})

	m.rateLimitWaits = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "fetch",
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent suspended waiting for a rate-limit reset",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60},
	})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by result (hit, miss, shared)",
	}, []string{"result"})

	m.fanoutWarnings = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "aggregate",
		Name:      "warnings_total",
		Help:      "Best-effort warnings attached to aggregation results",
	}, []string{"kind"})

	m.toolCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "tools",
		Name:      "calls_total",
		Help:      "Tool invocations by tool and result kind",
	}, []string{"tool", "result"})

	m.toolDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "tools",
		Name:      "duration_seconds",
		Help:      "Tool invocation latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool"})
}

// FetchAttempt counts one remote attempt.
func (m *Manager) FetchAttempt(resource, outcome string) {
	m.fetchAttempts.WithLabelValues(resource, outcome).Inc()
}

// FetchRetry counts a scheduled retry.
func (m *Manager) FetchRetry(reason string) {
	m.fetchRetries.WithLabelValues(reason).Inc()
}

// RateLimitWait records a rate-limit suspension.
func (m *Manager) RateLimitWait(d time.Duration) {
	m.rateLimitWaits.Observe(d.Seconds())
}

// CacheLookup counts a cache lookup result.
func (m *Manager) CacheLookup(result string) {
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Warning counts a best-effort warning.
func (m *Manager) Warning(kind string) {
	m.fanoutWarnings.WithLabelValues(kind).Inc()
}

// ToolCall records a finished tool invocation.
func (m *Manager) ToolCall(tool, result string, took time.Duration) {
	m.toolCalls.WithLabelValues(tool, result).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(took.Seconds())
}

// Handler serves the manager's registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }
