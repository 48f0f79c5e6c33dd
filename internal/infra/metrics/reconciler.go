package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileAppliedTotal,
		reconcileDuplicateTotal,
		reconcileConflictsTotal,
	)
}

var (
	reconcileAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_applied_total",
			Help: "Reconciliation events applied to the store, by source.",
		},
		[]string{"source"},
	)

	reconcileDuplicateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_duplicate_total",
			Help: "Reconciliation events dropped as duplicates, by source.",
		},
		[]string{"source"},
	)

	reconcileConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_conflicts_total",
			Help: "Conditional-write conflicts hit during reconciliation.",
		},
	)
)

func IncReconcileApplied(source string) {
	reconcileAppliedTotal.WithLabelValues(norm(source)).Inc()
}

func IncReconcileDuplicate(source string) {
	reconcileDuplicateTotal.WithLabelValues(norm(source)).Inc()
}

func IncReconcileConflict() {
	reconcileConflictsTotal.Inc()
}
