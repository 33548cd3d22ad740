package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for the sweeps and the best-effort
// side effects. All observe methods are nil-receiver safe so wiring is
// optional in tests.
type SchedulingMetrics struct {
	bestEffortTotal *prometheus.CounterVec
	remindersTotal  *prometheus.CounterVec
	waitlistTotal   *prometheus.CounterVec
	sweepRunsTotal  *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bestEffortTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinova",
			Subsystem: "scheduling",
			Name:      "best_effort_total",
			Help:      "Outcomes of best-effort side effects (calendar sync, sends)",
		}, []string{"operation", "status"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinova",
			Subsystem: "scheduling",
			Name:      "reminders_total",
			Help:      "Reminder delivery attempts",
		}, []string{"type", "method", "status"}),
		waitlistTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinova",
			Subsystem: "scheduling",
			Name:      "waitlist_events_total",
			Help:      "Waitlist queue events (notified, skipped, expired, converted)",
		}, []string{"event"}),
		sweepRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinova",
			Subsystem: "scheduling",
			Name:      "sweep_runs_total",
			Help:      "Periodic sweep executions",
		}, []string{"sweep", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bestEffortTotal, m.remindersTotal, m.waitlistTotal, m.sweepRunsTotal)
	return m
}

func (m *SchedulingMetrics) ObserveBestEffort(operation string, ok bool) {
	if m == nil {
		return
	}
	m.bestEffortTotal.WithLabelValues(operation, statusLabel(ok)).Inc()
}

func (m *SchedulingMetrics) ObserveReminder(typ, method string, ok bool) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(typ, method, statusLabel(ok)).Inc()
}

func (m *SchedulingMetrics) ObserveWaitlistEvent(event string) {
	if m == nil {
		return
	}
	m.waitlistTotal.WithLabelValues(event).Inc()
}

func (m *SchedulingMetrics) ObserveSweepRun(sweep string, ok bool) {
	if m == nil {
		return
	}
	m.sweepRunsTotal.WithLabelValues(sweep, statusLabel(ok)).Inc()
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
