package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks document lifecycle transitions.
type Metrics struct {
	DocumentsCreated  *prometheus.CounterVec
	Decisions         *prometheus.CounterVec
	DecisionConflicts prometheus.Counter
	DecisionDuration  prometheus.Histogram
}

// New registers the document metrics on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_documents_created_total",
			Help: "Total number of documents created",
		}, []string{"kind"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "approvals_decisions_total",
			Help: "Total number of approve/reject decisions applied",
		}, []string{"kind", "status"}),
		DecisionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "approvals_decision_conflicts_total",
			Help: "Decisions refused because the document was no longer pending",
		}),
		DecisionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "approvals_decision_duration_seconds",
			Help:    "Duration of approve/reject operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementCreated(kind string) {
	m.DocumentsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementDecision(kind, status string) {
	m.Decisions.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) IncrementConflict() {
	m.DecisionConflicts.Inc()
}

// ObserveDecision records the duration of a decision.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDecision(start time.Time) {
	m.DecisionDuration.Observe(time.Since(start).Seconds())
}
