package apilog

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder persists entries. Append failures are logged, never surfaced to
// the caller making the outbound request.
type Recorder interface {
	Append(ctx context.Context, entry Entry) error
}

// Metrics observes outbound call latency.
type Metrics struct {
	CallDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billtrack_external_call_duration_seconds",
			Help:    "Latency of outbound collaborator calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"host", "status"}),
	}
}

// Transport is an http.RoundTripper that logs each call to a Recorder.
type Transport struct {
	base     http.RoundTripper
	recorder Recorder
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

type Option func(*Transport)

func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) { t.base = rt }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

func NewTransport(recorder Recorder, opts ...Option) *Transport {
	t := &Transport{
		base:     http.DefaultTransport,
		recorder: recorder,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewClient returns an HTTP client whose calls are logged.
func NewClient(recorder Recorder, timeout time.Duration, opts ...Option) *http.Client {
	return &http.Client{Transport: NewTransport(recorder, opts...), Timeout: timeout}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := t.now()
	resp, err := t.base.RoundTrip(req)
	elapsed := t.now().Sub(start)

	entry := Entry{
		ID:           uuid.New(),
		Endpoint:     req.URL.Scheme + "://" + req.URL.Host + req.URL.Path,
		Method:       req.Method,
		ResponseTime: elapsed,
		CreatedAt:    start,
	}
	status := "error"
	if err != nil {
		entry.ErrorMessage = err.Error()
	} else {
		entry.StatusCode = resp.StatusCode
		status = strconv.Itoa(resp.StatusCode)
	}

	if t.metrics != nil {
		t.metrics.CallDuration.WithLabelValues(req.URL.Host, status).Observe(elapsed.Seconds())
	}
	// The request ctx may already be cancelled; the log row should still land.
	ctx := context.WithoutCancel(req.Context())
	if recErr := t.recorder.Append(ctx, entry); recErr != nil {
		t.logger.WarnContext(ctx, "failed to record api call", "endpoint", entry.Endpoint, "error", recErr)
	}
	return resp, err
}
