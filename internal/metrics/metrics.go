// Package metrics defines the Prometheus collectors the worker exposes:
// counters for consumed/retried/abandoned transactions and pool-detector
// cache hit/miss/eviction counters fed by internal/cache's MetricsRecorder
// hook.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the worker registers, so cmd/txprocessor
// has one object to wire into both the processor and the HTTP /metrics
// endpoint.
type Registry struct {
	TransactionsConsumed prometheus.Counter
	TransactionsRetried  prometheus.Counter
	TransactionsAbandoned prometheus.Counter
	QueuePurges          prometheus.Counter
	HookErrors           *prometheus.CounterVec
	PoolDetectorCacheHits   prometheus.Counter
	PoolDetectorCacheMisses prometheus.Counter
	PoolDetectorEvictions   prometheus.Counter
}

// New builds and registers every collector against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		TransactionsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txprocessor", Name: "transactions_consumed_total",
			Help: "Transactions popped off the work queue.",
		}),
		TransactionsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txprocessor", Name: "transactions_retried_total",
			Help: "Transactions re-enqueued after a failed fetch.",
		}),
		TransactionsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txprocessor", Name: "transactions_abandoned_total",
			Help: "Transactions dropped after exceeding the retry cap.",
		}),
		QueuePurges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txprocessor", Name: "queue_purges_total",
			Help: "Times the work queue was purged due to staleness.",
		}),
		HookErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "txprocessor", Name: "hook_errors_total",
			Help: "Errors returned by a preloader hook, by hook name.",
		}, []string{"hook"}),
		PoolDetectorCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txprocessor", Subsystem: "pool_detector", Name: "cache_hits_total",
		}),
		PoolDetectorCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txprocessor", Subsystem: "pool_detector", Name: "cache_misses_total",
		}),
		PoolDetectorEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txprocessor", Subsystem: "pool_detector", Name: "cache_evictions_total",
		}),
	}

	reg.MustRegister(
		r.TransactionsConsumed, r.TransactionsRetried, r.TransactionsAbandoned,
		r.QueuePurges, r.HookErrors,
		r.PoolDetectorCacheHits, r.PoolDetectorCacheMisses, r.PoolDetectorEvictions,
	)
	return r
}

// CacheRecorder adapts Registry's pool-detector collectors to
// internal/cache.MetricsRecorder.
type CacheRecorder struct {
	reg *Registry
}

// NewCacheRecorder builds a MetricsRecorder backed by reg's pool-detector
// collectors.
func NewCacheRecorder(reg *Registry) *CacheRecorder {
	return &CacheRecorder{reg: reg}
}

func (c *CacheRecorder) RecordHit()      { c.reg.PoolDetectorCacheHits.Inc() }
func (c *CacheRecorder) RecordMiss()     { c.reg.PoolDetectorCacheMisses.Inc() }
func (c *CacheRecorder) RecordEviction() { c.reg.PoolDetectorEvictions.Inc() }
