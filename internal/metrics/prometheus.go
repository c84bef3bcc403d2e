package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opgw"

// collectors mirror the registry into Prometheus.
type collectors struct {
	invocations   *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	rateLimitHits *prometheus.CounterVec
	cacheRequests *prometheus.CounterVec
}

func newCollectors(reg prometheus.Registerer) *collectors {
	factory := promauto.With(reg)

	c := &collectors{
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "operation",
				Name:      "attempts_total",
				Help:      "Total number of operation attempts by outcome",
			},
			[]string{"operation", "outcome"},
		),
		cancellations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "operation",
				Name:      "cancellations_total",
				Help:      "Total number of operations cancelled between attempts",
			},
			[]string{"operation"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "operation",
				Name:      "attempt_duration_seconds",
				Help:      "Duration of operation attempts in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		rateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ratelimit",
				Name:      "hits_total",
				Help:      "Total number of rejected admissions by category",
			},
			[]string{"category"},
		),
		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "requests_total",
				Help:      "Total number of response cache lookups by result",
			},
			[]string{"result"},
		),
	}

	// Emit zero-valued series so dashboards see the cache counters at startup.
	c.cacheRequests.WithLabelValues("hit")
	c.cacheRequests.WithLabelValues("miss")

	return c
}
