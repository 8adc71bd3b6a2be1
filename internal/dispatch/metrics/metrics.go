package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Document outcomes recorded per dispatch attempt.
const (
	OutcomeNotified        = "notified"
	OutcomeAlreadyNotified = "already_notified"
	OutcomeRenderFailed    = "render_failed"
	OutcomeSendFailed      = "send_failed"
	OutcomeMarkFailed      = "mark_failed"
	OutcomeIneligible      = "ineligible"
)

// Cycle outcomes.
const (
	CycleCompleted  = "completed"
	CycleScanFailed = "scan_failed"
	CycleSkipped    = "skipped"
)

type Metrics struct {
	Cycles        *prometheus.CounterVec
	Documents     *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	SendDuration  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_dispatch_cycles_total",
			Help: "Dispatch cycles by outcome",
		}, []string{"outcome"}),
		Documents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_dispatch_documents_total",
			Help: "Documents handled by the dispatcher by kind and outcome",
		}, []string{"kind", "outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "approvals_dispatch_cycle_duration_seconds",
			Help:    "Wall time of one dispatch cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
		SendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "approvals_dispatch_send_duration_seconds",
			Help:    "Time spent rendering and sending one notification",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) IncrementCycle(outcome string) {
	m.Cycles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementDocument(kind, outcome string) {
	m.Documents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveCycle(start time.Time) {
	m.CycleDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveSend(start time.Time) {
	m.SendDuration.Observe(time.Since(start).Seconds())
}
