package retry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for retries.
type Metrics struct {
	attemptsTotal   *prometheus.CounterVec
	exhaustedTotal  *prometheus.CounterVec
	stoppedTotal    *prometheus.CounterVec
	backoffDuration *prometheus.HistogramVec
}

// NewMetrics registers retry collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "retry",
				Name:      "attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation", "attempt"},
		),
		exhaustedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "retry",
				Name:      "exhausted_total",
				Help:      "Total number of operations that failed after all retry attempts",
			},
			[]string{"operation"},
		),
		stoppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "retry",
				Name:      "non_retryable_total",
				Help:      "Total number of operations stopped by a non-retryable error",
			},
			[]string{"operation", "type"},
		),
		backoffDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "opgw",
				Subsystem: "retry",
				Name:      "backoff_duration_seconds",
				Help:      "Duration of backoff waits in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 30},
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) recordRetry(op string, attempt int, backoffSeconds float64) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(op, strconv.Itoa(attempt)).Inc()
	m.backoffDuration.WithLabelValues(op).Observe(backoffSeconds)
}

func (m *Metrics) recordExhausted(op string) {
	if m == nil {
		return
	}
	m.exhaustedTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) recordStopped(op, typ string) {
	if m == nil {
		return
	}
	m.stoppedTotal.WithLabelValues(op, typ).Inc()
}
