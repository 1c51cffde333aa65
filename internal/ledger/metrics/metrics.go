package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics tracks recorded income.
type Metrics struct {
	IncomeRecorded  prometheus.Counter
	IncomeAmount    prometheus.Counter
	DuplicateIncome prometheus.Counter
}

// New registers ledger metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IncomeRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_income_records_total",
			Help: "Total number of income records written",
		}),
		IncomeAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_income_amount_baht_total",
			Help: "Sum of recorded income in baht",
		}),
		DuplicateIncome: f.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_income_duplicates_total",
			Help: "Income writes rejected because the document already has a record",
		}),
	}
}

func (m *Metrics) ObserveIncome(amount decimal.Decimal) {
	m.IncomeRecorded.Inc()
	m.IncomeAmount.Add(amount.InexactFloat64())
}

func (m *Metrics) IncrementDuplicate() {
	m.DuplicateIncome.Inc()
}
