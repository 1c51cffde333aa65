package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts reconciled external events by outcome.
type Metrics struct {
	EventsApplied   *prometheus.CounterVec
	StaleEvents     *prometheus.CounterVec
	OrphansQueued   prometheus.Counter
	OrphansResolved prometheus.Counter
	OrphansDropped  prometheus.Counter
	Rejected        *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_reconcile_events_applied_total",
			Help: "External events applied to documents, by kind",
		}, []string{"kind"}),
		StaleEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_reconcile_stale_events_total",
			Help: "Events discarded because they predate the last applied event",
		}, []string{"kind"}),
		OrphansQueued: f.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_reconcile_orphans_queued_total",
			Help: "Events whose reference matched no attempt and were queued for retry",
		}),
		OrphansResolved: f.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_reconcile_orphans_resolved_total",
			Help: "Queued orphan events that matched on retry",
		}),
		OrphansDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_reconcile_orphans_discarded_total",
			Help: "Orphan events discarded after their retry",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_reconcile_events_rejected_total",
			Help: "Events rejected, by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) IncrementApplied(kind string)  { m.EventsApplied.WithLabelValues(kind).Inc() }
func (m *Metrics) IncrementStale(kind string)    { m.StaleEvents.WithLabelValues(kind).Inc() }
func (m *Metrics) IncrementOrphanQueued()        { m.OrphansQueued.Inc() }
func (m *Metrics) IncrementOrphanResolved()      { m.OrphansResolved.Inc() }
func (m *Metrics) IncrementOrphanDiscarded()     { m.OrphansDropped.Inc() }
func (m *Metrics) IncrementRejected(code string) { m.Rejected.WithLabelValues(code).Inc() }
