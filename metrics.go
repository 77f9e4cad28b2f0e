package apiwatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for the tracker. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	usageRecorded     *prometheus.CounterVec
	windowResets      *prometheus.CounterVec
	incrementAttempts prometheus.Histogram
	incrementFailures prometheus.Counter
	alertsFired       prometheus.Counter
	sideChannelErrors *prometheus.CounterVec
	recordDuration    prometheus.Histogram
}

// NewMetrics registers the tracker metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		usageRecorded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiwatch_usage_recorded_total",
				Help: "Total number of requests recorded against tracked resources",
			},
			[]string{"period"},
		),
		windowResets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiwatch_window_resets_total",
				Help: "Total number of quota window rollovers",
			},
			[]string{"period"},
		),
		incrementAttempts: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "apiwatch_increment_attempts",
				Help:    "Attempts needed to commit one counter update",
				Buckets: []float64{1, 2, 3, 5, 8},
			},
		),
		incrementFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "apiwatch_increment_failures_total",
				Help: "Counter updates that could not be confirmed",
			},
		),
		alertsFired: f.NewCounter(
			prometheus.CounterOpts{
				Name: "apiwatch_alerts_fired_total",
				Help: "Total number of threshold alerts fired",
			},
		),
		sideChannelErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apiwatch_side_channel_errors_total",
				Help: "Best-effort steps that failed without failing the request",
			},
			[]string{"component"},
		),
		recordDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "apiwatch_record_usage_duration_seconds",
				Help:    "Duration of RecordUsage calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
			},
		),
	}
}

func (m *Metrics) recordUsage(period Period, count int64, reset bool, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.usageRecorded.WithLabelValues(period.String()).Add(float64(count))
	if reset {
		m.windowResets.WithLabelValues(period.String()).Inc()
	}
	m.incrementAttempts.Observe(float64(attempts))
	m.recordDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) recordIncrementFailure() {
	if m == nil {
		return
	}
	m.incrementFailures.Inc()
}

func (m *Metrics) recordAlertFired() {
	if m == nil {
		return
	}
	m.alertsFired.Inc()
}

func (m *Metrics) recordSideChannelError(component string) {
	if m == nil {
		return
	}
	m.sideChannelErrors.WithLabelValues(component).Inc()
}
