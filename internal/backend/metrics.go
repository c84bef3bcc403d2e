package backend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the tenant pool.
type Metrics struct {
	tenants            prometheus.Gauge
	constructionsTotal *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	breakerRejections  *prometheus.CounterVec

	upstreamInFlight prometheus.Gauge
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// NewMetrics registers pool, breaker and admin API client collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		tenants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "opgw",
			Subsystem: "backend",
			Name:      "tenants",
			Help:      "Number of tenant handles currently pooled",
		}),
		constructionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "backend",
				Name:      "constructions_total",
				Help:      "Total number of tenant handle constructions by result",
			},
			[]string{"result"},
		),
		breakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "backend",
				Name:      "breaker_transitions_total",
				Help:      "Total number of circuit breaker state transitions",
			},
			[]string{"tenant", "from", "to"},
		),
		breakerRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "backend",
				Name:      "breaker_rejections_total",
				Help:      "Total number of calls rejected by an open circuit breaker",
			},
			[]string{"tenant"},
		),
		upstreamInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "opgw",
			Subsystem: "upstream",
			Name:      "requests_in_flight",
			Help:      "Number of admin API requests in flight",
		}),
		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "opgw",
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of admin API requests by status code and method",
			},
			[]string{"code", "method"},
		),
		upstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "opgw",
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Admin API request latency",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"code", "method"},
		),
	}
}

func (m *Metrics) setTenants(n int) {
	if m == nil {
		return
	}
	m.tenants.Set(float64(n))
}

func (m *Metrics) recordConstruction(result string) {
	if m == nil {
		return
	}
	m.constructionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) recordTransition(tenant, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(tenant, from, to).Inc()
}

func (m *Metrics) recordRejection(tenant string) {
	if m == nil {
		return
	}
	m.breakerRejections.WithLabelValues(tenant).Inc()
}
