// Package metrics exposes the worker's Prometheus surface: request
// counts/latency by outcome, artifact cache hit/miss, and instance
// pool occupancy, supplementing the bare GET /status liveness check
// with the ambient observability a dedicated monitoring stack
// consumes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter/histogram this worker exports. Create
// one per process with New and register it on a single registry.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	poolIdle        *prometheus.GaugeVec
}

// New builds and registers the worker's metrics against a fresh
// registry (kept private to this process rather than the global
// default registry, so tests can build independent instances).
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ol_wasm_worker_requests_total",
			Help: "Total function invocations, by function name and outcome.",
		}, []string{"function", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ol_wasm_worker_request_duration_seconds",
			Help:    "Function invocation latency in seconds, by function name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"function"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ol_wasm_worker_cache_hits_total",
			Help: "Artifact cache hits (fresh on-disk artifact reused).",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ol_wasm_worker_cache_misses_total",
			Help: "Artifact cache misses (compiled from source).",
		}),
		poolIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ol_wasm_worker_pool_idle_instances",
			Help: "Current idle instance count, by function name.",
		}, []string{"function"}),
	}

	reg.MustRegister(m.requestsTotal, m.requestDuration, m.cacheHits, m.cacheMisses, m.poolIdle)
	return m
}

// Registry exposes the underlying Prometheus registry for mounting
// promhttp.HandlerFor on the metrics listener.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest accounts one dispatcher invocation of function by
// outcome ("ok", "trap", "not_found", "mint_error", "no_entry_point").
// The wall-clock duration is observed only for "ok" and "trap".
func (m *Metrics) RecordRequest(function, outcome string, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(function, outcome).Inc()
	if outcome == "ok" || outcome == "trap" {
		m.requestDuration.WithLabelValues(function).Observe(elapsed.Seconds())
	}
}

// RecordCacheHit accounts one fresh-artifact reuse.
func (m *Metrics) RecordCacheHit() { m.cacheHits.Inc() }

// RecordCacheMiss accounts one compile-from-source.
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Inc() }

// SetPoolIdle records the current free-list size for function. The
// dispatcher calls it after returning an instance to the pool on a
// successful call.
func (m *Metrics) SetPoolIdle(function string, idle int) {
	m.poolIdle.WithLabelValues(function).Set(float64(idle))
}
