package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry configuration constants.
const (
	// DefaultMaxRetries is the default maximum number of retries after the
	// first attempt.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the wait before the first retry.
	DefaultBaseDelay = time.Second

	// DefaultMaxDelay caps every wait.
	DefaultMaxDelay = 30 * time.Second

	// MaxJitterFactor is the maximum allowed jitter factor.
	MaxJitterFactor = 1.0
)

// Config contains retry configuration parameters.
type Config struct {
	// MaxRetries is the maximum number of retries after the first attempt.
	// Zero disables retries; a negative value selects the default of 3.
	MaxRetries int

	// BaseDelay is the wait before the first retry. Default is 1s.
	BaseDelay time.Duration

	// MaxDelay caps the wait between attempts. Default is 30s.
	MaxDelay time.Duration

	// JitterFactor (0.0 to 1.0) adds up to JitterFactor*wait of random
	// delay. Default is 0, which keeps the schedule exact.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// GetMaxRetries returns the effective max retries.
func (c *Config) GetMaxRetries() int {
	if c == nil || c.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return c.MaxRetries
}

// GetBaseDelay returns the effective base delay.
func (c *Config) GetBaseDelay() time.Duration {
	if c == nil || c.BaseDelay <= 0 {
		return DefaultBaseDelay
	}
	return c.BaseDelay
}

// GetMaxDelay returns the effective max delay.
func (c *Config) GetMaxDelay() time.Duration {
	if c == nil || c.MaxDelay <= 0 {
		return DefaultMaxDelay
	}
	return c.MaxDelay
}

// GetJitterFactor returns the effective jitter factor.
func (c *Config) GetJitterFactor() float64 {
	if c == nil || c.JitterFactor <= 0 {
		return 0
	}
	if c.JitterFactor > MaxJitterFactor {
		return MaxJitterFactor
	}
	return c.JitterFactor
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// ShouldRetryFunc determines if an error should trigger a retry.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// ShouldRetry determines if an error should trigger a retry.
	// If nil, all errors are retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do executes a function with retry logic.
func Do(ctx context.Context, cfg *Config, fn RetryableFunc, opts *Options) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	maxRetries := cfg.GetMaxRetries()
	baseDelay := cfg.GetBaseDelay()
	maxDelay := cfg.GetMaxDelay()
	jitterFactor := cfg.GetJitterFactor()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := CalculateBackoff(attempt, baseDelay, maxDelay, jitterFactor)

			if opts != nil && opts.OnRetry != nil {
				opts.OnRetry(attempt+1, lastErr, backoff)
			}

			if err := sleep(ctx, backoff); err != nil {
				return err
			}
		}
	}

	return lastErr
}

// CalculateBackoff returns min(base*2^attempt, max) plus up to
// jitterFactor of random extra delay, capped at max.
func CalculateBackoff(attempt int, baseDelay, maxDelay time.Duration, jitterFactor float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	backoff := float64(baseDelay) * math.Pow(2, float64(attempt))
	if backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}

	if jitterFactor > 0 {
		//nolint:gosec // G404: jitter for retry timing is not security-sensitive
		backoff += backoff * jitterFactor * rand.Float64()
		if backoff > float64(maxDelay) {
			backoff = float64(maxDelay)
		}
	}

	return time.Duration(backoff)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
