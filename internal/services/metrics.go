// Package services – Prometheus instrumentation for sync and cache work.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_reconciled_total",
			Help: "Per-order reconciliation outcomes by action.",
		},
		[]string{"action"},
	)

	reconcileBatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orders_reconcile_batch_duration_seconds",
			Help:    "Wall time of one reconcile batch.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms..~200s
		},
	)

	cacheValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_cache_validations_total",
			Help: "Cache validation verdicts per order.",
		},
		[]string{"verdict"},
	)

	cacheRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_cache_rebuilds_total",
			Help: "Cache rebuild attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(ordersReconciled, reconcileBatchSeconds, cacheValidations, cacheRebuilds)
}
