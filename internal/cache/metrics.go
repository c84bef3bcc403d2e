package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for cache backends. Hit and miss
// counts live in the gateway metrics registry.
type Metrics struct {
	evictionsTotal    *prometheus.CounterVec
	expiredTotal      *prometheus.CounterVec
	entries           *prometheus.GaugeVec
	errorsTotal       *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

// NewMetrics registers cache collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		evictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Total number of entries evicted to respect the size bound",
			},
			[]string{"backend"},
		),
		expiredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "cache",
				Name:      "expired_total",
				Help:      "Total number of expired entries removed on read or by the sweep",
			},
			[]string{"backend"},
		),
		entries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "opgw",
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of stored entries",
			},
			[]string{"backend"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Total number of failed backend operations",
			},
			[]string{"backend", "operation"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "opgw",
				Subsystem: "cache",
				Name:      "operation_duration_seconds",
				Help:      "Duration of cache operations in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"backend", "operation"},
		),
	}

	for _, backend := range []string{backendMemory, backendRedis} {
		m.evictionsTotal.WithLabelValues(backend)
		m.expiredTotal.WithLabelValues(backend)
	}

	return m
}

func (m *Metrics) observe(backend, op string, start time.Time) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordEviction(backend string) {
	if m == nil {
		return
	}
	m.evictionsTotal.WithLabelValues(backend).Inc()
}

func (m *Metrics) recordExpired(backend string, n int) {
	if m == nil {
		return
	}
	m.expiredTotal.WithLabelValues(backend).Add(float64(n))
}

func (m *Metrics) setEntries(backend string, n int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(backend).Set(float64(n))
}

func (m *Metrics) recordError(backend, op string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(backend, op).Inc()
}
