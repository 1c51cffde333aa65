package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers dispatch outcomes and the delivery status poller.
type Metrics struct {
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	SendRetries      *prometheus.CounterVec
	CircuitState     *prometheus.GaugeVec
	PollerRuns       prometheus.Counter
	PollerEvents     *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_dispatch_total",
			Help: "Dispatch attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		DispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billtrack_dispatch_duration_seconds",
			Help:    "Time spent calling the channel, retries included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"channel"}),
		SendRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_dispatch_retries_total",
			Help: "Channel calls retried after a transient failure",
		}, []string{"channel"}),
		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "billtrack_channel_circuit_open",
			Help: "1 when the channel circuit breaker is open",
		}, []string{"channel"}),
		PollerRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "billtrack_delivery_poller_runs_total",
			Help: "Completed delivery status poll cycles",
		}),
		PollerEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billtrack_delivery_poller_events_total",
			Help: "Tracking updates turned into reconciler events, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveDispatch(channel, outcome string, d time.Duration) {
	m.DispatchTotal.WithLabelValues(channel, outcome).Inc()
	m.DispatchDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) IncrementRetry(channel string) {
	m.SendRetries.WithLabelValues(channel).Inc()
}

func (m *Metrics) SetCircuitOpen(channel string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitState.WithLabelValues(channel).Set(v)
}

func (m *Metrics) IncrementPollerRun() {
	m.PollerRuns.Inc()
}

func (m *Metrics) IncrementPollerEvent(result string) {
	m.PollerEvents.WithLabelValues(result).Inc()
}
