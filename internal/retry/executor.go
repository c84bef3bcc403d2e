package retry

import (
	"context"
	"time"

	"github.com/vyrodovalexey/opgw/internal/classify"
	"github.com/vyrodovalexey/opgw/internal/metrics"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

// Func is one attempt of an operation.
type Func func(ctx context.Context) (any, error)

// Recorder receives one record per attempt.
type Recorder interface {
	RecordInvocation(op string, d time.Duration, outcome metrics.Outcome)
	RecordCancellation(op string)
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Executor runs operations under the retry policy.
type Executor struct {
	cfg      Config
	classify func(error) classify.Classification
	recorder Recorder
	metrics  *Metrics
	logger   observability.Logger
	wait     WaitFunc
	now      func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRecorder sets the per-attempt recorder.
func WithRecorder(r Recorder) ExecutorOption {
	return func(e *Executor) {
		e.recorder = r
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithClassifier overrides classify.Classify.
func WithClassifier(fn func(error) classify.Classification) ExecutorOption {
	return func(e *Executor) {
		e.classify = fn
	}
}

// WithWait overrides the backoff wait.
func WithWait(fn WaitFunc) ExecutorOption {
	return func(e *Executor) {
		e.wait = fn
	}
}

// WithClock overrides the time source used to measure attempts.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an Executor. A nil cfg uses DefaultConfig.
func NewExecutor(cfg *Config, opts ...ExecutorOption) *Executor {
	e := &Executor{
		cfg: Config{
			MaxRetries:   cfg.GetMaxRetries(),
			BaseDelay:    cfg.GetBaseDelay(),
			MaxDelay:     cfg.GetMaxDelay(),
			JitterFactor: cfg.GetJitterFactor(),
		},
		classify: classify.Classify,
		logger:   observability.NopLogger(),
		wait:     sleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Backoff returns the wait after the given 0-based attempt.
func (e *Executor) Backoff(attempt int) time.Duration {
	return CalculateBackoff(attempt, e.cfg.BaseDelay, e.cfg.MaxDelay, e.cfg.JitterFactor)
}

// Run calls fn until it succeeds, fails with a non-retryable
// classification or a Permanent error, exhausts MaxRetries, or ctx ends. Failures are returned
// as *Error.
func (e *Executor) Run(ctx context.Context, op string, fn Func) (any, error) {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, e.cancelled(op, attempts, err)
		}

		start := e.now()
		value, err := fn(ctx)
		elapsed := e.now().Sub(start)
		attempts++

		if err == nil {
			e.record(op, elapsed, metrics.OutcomeSuccess)
			return value, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			e.record(op, elapsed, metrics.OutcomeCancelled)
			return nil, &Error{
				Op:             op,
				Attempts:       attempts,
				Classification: e.classify(ctxErr),
				Cause:          ctxErr,
				Cancelled:      true,
			}
		}

		e.record(op, elapsed, metrics.OutcomeFailure)

		c := e.classify(err)
		if !c.Retryable() || IsPermanent(err) {
			e.metrics.recordStopped(op, string(c.Type))
			e.logger.Debug("operation failed with non-retryable error",
				observability.String("operation", op),
				observability.String("classification", c.String()),
				observability.Error(err))
			return nil, &Error{Op: op, Attempts: attempts, Classification: c, Cause: err}
		}

		if attempts > e.cfg.MaxRetries {
			e.metrics.recordExhausted(op)
			e.logger.Warn("operation retries exhausted",
				observability.String("operation", op),
				observability.Int("attempts", attempts),
				observability.String("classification", c.String()),
				observability.Error(err))
			return nil, &Error{Op: op, Attempts: attempts, Classification: c, Cause: err}
		}

		backoff := e.Backoff(attempts - 1)
		e.metrics.recordRetry(op, attempts, backoff.Seconds())
		e.logger.Debug("retrying operation",
			observability.String("operation", op),
			observability.Int("attempt", attempts),
			observability.Duration("backoff", backoff),
			observability.String("classification", c.String()),
			observability.Error(err))

		if waitErr := e.wait(ctx, backoff); waitErr != nil {
			return nil, e.cancelled(op, attempts, waitErr)
		}
	}
}

func (e *Executor) record(op string, d time.Duration, outcome metrics.Outcome) {
	if e.recorder != nil {
		e.recorder.RecordInvocation(op, d, outcome)
	}
}

func (e *Executor) cancelled(op string, attempts int, cause error) *Error {
	if e.recorder != nil {
		e.recorder.RecordCancellation(op)
	}
	e.logger.Debug("operation cancelled",
		observability.String("operation", op),
		observability.Int("attempts", attempts),
		observability.Error(cause))
	return &Error{
		Op:             op,
		Attempts:       attempts,
		Classification: e.classify(cause),
		Cause:          cause,
		Cancelled:      true,
	}
}
