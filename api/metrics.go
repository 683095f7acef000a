// metrics.go - Prometheus counters for the billing engine.
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_reconcile_runs_total",
		Help: "Reconciliation passes triggered via the API.",
	})
	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sweep_runs_total",
		Help: "Background reconciliation sweeps completed.",
	})
	sweepChanged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sweep_records_changed_total",
		Help: "Records mutated by background sweeps.",
	})
	syncRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_toggl_sync_total",
		Help: "Successful time-tracking syncs.",
	})
	syncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_toggl_sync_failures_total",
		Help: "Failed time-tracking syncs.",
	})
)
