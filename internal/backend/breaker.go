package backend

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/opgw/internal/classify"
	"github.com/vyrodovalexey/opgw/internal/config"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

// Breaker wraps gobreaker.CircuitBreaker for one tenant.
type Breaker struct {
	tenant string
	cb     *gobreaker.CircuitBreaker
	opts   *options
}

// NewBreaker creates the circuit breaker of tenant. The circuit opens after
// cfg.ConsecutiveFailures consecutive failures and lets cfg.MaxRequests
// probes through once cfg.Timeout has elapsed.
//
// Only failures that say something about the backend count: errors the
// caller caused (bad input, rejected credentials, missing permission) and
// caller cancellation leave the counters untouched.
func NewBreaker(tenant string, cfg config.CircuitBreakerConfig, opts ...Option) *Breaker {
	b := &Breaker{tenant: tenant, opts: buildOptions(opts)}

	threshold := safeIntToUint32(cfg.ConsecutiveFailures)
	if threshold == 0 {
		threshold = 1
	}

	settings := gobreaker.Settings{
		Name:        tenant,
		MaxRequests: safeIntToUint32(cfg.MaxRequests),
		Interval:    cfg.Interval.Duration(),
		Timeout:     cfg.Timeout.Duration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBackendHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.opts.logger.Info("circuit breaker state change",
				observability.String("tenant", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			b.opts.metrics.recordTransition(name, from.String(), to.String())
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

func isBackendHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return !classify.Classify(err).Retryable()
}

// Execute runs fn through the breaker. A nil Breaker runs fn directly.
// Rejections return gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests,
// which classify as Network/ServiceUnavailable.
func (b *Breaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	if b == nil {
		return fn()
	}

	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.opts.metrics.recordRejection(b.tenant)
		trace.SpanFromContext(ctx).AddEvent("circuit_breaker.rejected", trace.WithAttributes(
			attribute.String("tenant", b.tenant),
			attribute.String("state", b.cb.State().String()),
		))
	}
	return result, err
}

// State returns the breaker state, "closed" for a nil Breaker.
func (b *Breaker) State() string {
	if b == nil {
		return gobreaker.StateClosed.String()
	}
	return b.cb.State().String()
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
