// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeOK        = "ok"
	OutcomeNoop      = "noop"
	OutcomeDuplicate = "duplicate"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_commands_total",
			Help: "Lifecycle commands handled, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	EventsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_appended_total",
			Help: "Event log appends, by kind and outcome (ok or duplicate)",
		},
		[]string{"kind", "outcome"},
	)

	AlertsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_enqueued_total",
			Help: "Notification intents offered to the queue, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	AlertsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_delivery_total",
			Help: "Delivery attempts, by outcome (ok, retry, failed)",
		},
		[]string{"outcome"},
	)

	AlertDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alerts_delivery_duration_seconds",
			Help:    "Duration of a single channel send in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_runs_total",
			Help: "Daily sweep runs, by outcome",
		},
		[]string{"outcome"},
	)

	SweepItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_items_total",
			Help: "Per-entity sweep work, by step and outcome",
		},
		[]string{"step", "outcome"},
	)
)
