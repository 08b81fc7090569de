package metrics

import "github.com/prometheus/client_golang/prometheus"

// LifecycleMetrics exposes counters for lifecycle transitions and conflicts.
type LifecycleMetrics struct {
	transitionsTotal *prometheus.CounterVec
	conflictsTotal   *prometheus.CounterVec
	billsSettled     prometheus.Counter
}

func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	m := &LifecycleMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Committed lifecycle transitions by aggregate and target status",
		}, []string{"aggregate", "to_status"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "lifecycle",
			Name:      "conflicts_total",
			Help:      "Rejected transitions: failed guards and lost concurrent races",
		}, []string{"aggregate", "operation"}),
		billsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "bills_reconciled_total",
			Help:      "Bills rebuilt by the completion reconciler",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.conflictsTotal, m.billsSettled)
	return m
}

func (m *LifecycleMetrics) ObserveTransition(aggregate, toStatus string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(aggregate, toStatus).Inc()
}

func (m *LifecycleMetrics) ObserveConflict(aggregate, operation string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(aggregate, operation).Inc()
}

func (m *LifecycleMetrics) ObserveBillReconciled() {
	if m == nil {
		return
	}
	m.billsSettled.Inc()
}
