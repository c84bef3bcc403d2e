package health

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for health checks.
type Metrics struct {
	checksTotal   *prometheus.CounterVec
	checkStatus   *prometheus.GaugeVec
	checkDuration *prometheus.HistogramVec
	ready         prometheus.Gauge
}

// NewMetrics registers the health collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "health",
				Name:      "checks_total",
				Help:      "Total number of dependency checks by result",
			},
			[]string{"check", "result"},
		),
		checkStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "opgw",
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Last dependency check result (1=healthy, 0=unhealthy)",
			},
			[]string{"check"},
		),
		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "opgw",
				Subsystem: "health",
				Name:      "check_duration_seconds",
				Help:      "Dependency check latency",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2},
			},
			[]string{"check"},
		),
		ready: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "opgw",
				Subsystem: "health",
				Name:      "ready",
				Help:      "Whether the last readiness evaluation passed (1) or not (0)",
			},
		),
	}
}

func (m *Metrics) recordCheck(name string, healthy bool, d time.Duration) {
	if m == nil {
		return
	}
	result, value := "failure", 0.0
	if healthy {
		result, value = "success", 1.0
	}
	m.checksTotal.WithLabelValues(name, result).Inc()
	m.checkStatus.WithLabelValues(name).Set(value)
	m.checkDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) recordReadiness(status Status) {
	if m == nil {
		return
	}
	if status == StatusHealthy || status == StatusDegraded {
		m.ready.Set(1)
		return
	}
	m.ready.Set(0)
}
