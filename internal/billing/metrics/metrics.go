package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts bill and document lifecycle use cases.
type Metrics struct {
	BillsCreated       *prometheus.CounterVec
	DocumentsCancelled prometheus.Counter
	Transitions        *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BillsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_bills_created_total",
			Help: "Bills created, by election type",
		}, []string{"election_type"}),
		DocumentsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_documents_cancelled_total",
			Help: "Documents moved to Cancelled",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_document_transitions_total",
			Help: "Document status transitions applied, by target status",
		}, []string{"status"}),
	}
}

func (m *Metrics) IncrementBillsCreated(electionType string) {
	m.BillsCreated.WithLabelValues(electionType).Inc()
}

func (m *Metrics) IncrementCancelled() {
	m.DocumentsCancelled.Inc()
	m.Transitions.WithLabelValues("cancelled").Inc()
}

// ObserveTransition records a status change. Callers skip no-op transitions.
func (m *Metrics) ObserveTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
}
