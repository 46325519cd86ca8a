// Package observability defines the Prometheus metrics exposed by the
// service. Counters are registered on the default registry and served by the
// /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts read-through cache hits.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civiq_cache_hits_total",
		Help: "Number of cache hits served from the tagged cache.",
	})

	// CacheMisses counts read-through cache misses.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civiq_cache_misses_total",
		Help: "Number of cache misses (including degraded reads while the store is unavailable).",
	})

	// CacheInvalidations counts tag invalidation sweeps.
	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civiq_cache_invalidations_total",
		Help: "Number of keys removed by tag invalidation, labelled by tag.",
	}, []string{"tag"})

	// LockConflicts counts resource lock acquisitions rejected because another
	// holder owns the lease.
	LockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civiq_lock_conflicts_total",
		Help: "Number of resource lock acquisitions that failed due to a live lease.",
	})

	// IdempotencyReplays counts duplicate submissions answered from the ledger.
	IdempotencyReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civiq_idempotency_replays_total",
		Help: "Number of requests answered by replaying a stored idempotent response.",
	})

	// IdempotencyConflicts counts idempotency keys reused with a different
	// payload or contended by a concurrent duplicate.
	IdempotencyConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civiq_idempotency_conflicts_total",
		Help: "Number of idempotency conflicts (fingerprint mismatch or concurrent duplicate).",
	})

	// RateLimited counts requests rejected by the per-client rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "civiq_rate_limited_total",
		Help: "Number of requests rejected with 429 by the rate limiter.",
	})
)
