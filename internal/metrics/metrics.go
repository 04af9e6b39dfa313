// Package metrics holds the Prometheus collectors for sync outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncOperations counts recorded sync attempts by entity, action and status
	SyncOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbsync_sync_operations_total",
		Help: "Sync attempts by entity type, action and status",
	}, []string{"entity", "action", "status"})

	// BatchDuration times batch runs
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qbsync_batch_duration_seconds",
		Help:    "Duration of batch sync runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"operation"})

	// PaymentsImported counts payments created locally from QuickBooks
	PaymentsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qbsync_payments_imported_total",
		Help: "Payments imported from QuickBooks by the inbound poll",
	})

	// PollRuns counts scheduler poll invocations by outcome
	PollRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qbsync_payment_poll_runs_total",
		Help: "Inbound payment poll runs by outcome",
	}, []string{"outcome"})
)
