// Package metrics holds the process self-monitoring counters exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation cycles by result (ok, panic)
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubesentry_cycles_total",
			Help: "Total number of reconciliation cycles run",
		},
		[]string{"result"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kubesentry_cycle_duration_seconds",
			Help:    "Reconciliation cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubesentry_fetch_failures_total",
			Help: "Snapshot fetch failures by resource kind",
		},
		[]string{"kind"},
	)

	// Changes offered to the alert engine, by change kind and outcome
	// (created, deduplicated, suppressed, resolved, recovered, removed)
	AlertChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubesentry_alert_changes_total",
			Help: "Condition changes processed by the alert engine",
		},
		[]string{"kind", "outcome"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubesentry_notifications_total",
			Help: "Notification deliveries by result",
		},
		[]string{"result"},
	)

	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kubesentry_store_errors_total",
			Help: "Alert store failures by operation",
		},
		[]string{"operation"},
	)

	TrackedResources = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kubesentry_tracked_resources",
			Help: "Resources currently tracked by kind",
		},
		[]string{"kind"},
	)
)
