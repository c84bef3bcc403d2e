// Package ratelimit provides per-category admission control for the gateway.
//
// Every declared category owns one continuously refilled token bucket. A
// bucket of {Points, Duration} holds at most Points tokens and refills at
// Points per Duration, so a full bucket admits Points requests back to back
// and then one request every Duration/Points.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/vyrodovalexey/opgw/internal/observability"
)

// GlobalCategory is used for operations whose category has no bucket.
const GlobalCategory = "global"

// ErrInvalidBucket indicates a bucket with non-positive points or duration.
var ErrInvalidBucket = errors.New("invalid rate limit bucket")

// Bucket is the static configuration of one category.
type Bucket struct {
	// Points is the bucket capacity.
	Points int

	// Duration is the time needed to refill Points tokens.
	Duration time.Duration
}

// Rate returns the refill rate in tokens per second.
func (b Bucket) Rate() float64 {
	return float64(b.Points) / b.Duration.Seconds()
}

func (b Bucket) validate() error {
	if b.Points <= 0 || b.Duration <= 0 {
		return fmt.Errorf("%w: points=%d duration=%s", ErrInvalidBucket, b.Points, b.Duration)
	}
	return nil
}

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether a token was taken.
	Allowed bool

	// Category is the bucket that was consulted.
	Category string

	// Remaining is the number of whole tokens left after the check.
	Remaining int

	// RetryAfter is the wait until one token is available. Zero when allowed.
	RetryAfter time.Duration
}

// RetryAfterMs returns RetryAfter in whole milliseconds, rounded up.
func (d Decision) RetryAfterMs() int64 {
	return int64(math.Ceil(float64(d.RetryAfter) / float64(time.Millisecond)))
}

// Store keeps bucket state. Take removes one token from the category bucket
// if one is available at now. SetBuckets replaces the bucket definitions.
type Store interface {
	Take(ctx context.Context, category string, now time.Time) (Decision, error)
	SetBuckets(buckets map[string]Bucket, now time.Time)
	Close() error
}

// Limiter admits requests per category.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]Bucket

	store    Store
	fallback Store
	logger   observability.Logger
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore replaces the default in-memory store.
func WithStore(store Store) Option {
	return func(l *Limiter) {
		l.store = store
	}
}

// WithFallback sets the store used while the primary store is failing.
func WithFallback(store Store) Option {
	return func(l *Limiter) {
		l.fallback = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New builds a limiter from the declared buckets.
func New(buckets map[string]Bucket, opts ...Option) (*Limiter, error) {
	copied, err := copyBuckets(buckets)
	if err != nil {
		return nil, err
	}

	l := &Limiter{
		buckets: copied,
		logger:  observability.NopLogger(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.store == nil {
		l.store = NewMemoryStore(l.buckets)
	}

	return l, nil
}

func copyBuckets(buckets map[string]Bucket) (map[string]Bucket, error) {
	out := make(map[string]Bucket, len(buckets))
	for category, b := range buckets {
		if err := b.validate(); err != nil {
			return nil, fmt.Errorf("category %q: %w", category, err)
		}
		out[category] = b
	}
	return out, nil
}

// Reconfigure replaces the declared buckets. Categories present before and
// after keep their remaining tokens. On error nothing changes.
func (l *Limiter) Reconfigure(buckets map[string]Bucket) error {
	copied, err := copyBuckets(buckets)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.buckets = copied
	l.store.SetBuckets(copied, now)
	if l.fallback != nil {
		l.fallback.SetBuckets(copied, now)
	}

	l.logger.Info("rate limit buckets reconfigured",
		observability.Strings("categories", sortedKeys(copied)))
	return nil
}

// Categories returns the declared categories in sorted order.
func (l *Limiter) Categories() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return sortedKeys(l.buckets)
}

func sortedKeys(buckets map[string]Bucket) []string {
	out := make([]string, 0, len(buckets))
	for category := range buckets {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Bucket returns the configuration of a category.
func (l *Limiter) Bucket(category string) (Bucket, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.buckets[category]
	return b, ok
}

// Resolve returns the bucket category that governs category.
func (l *Limiter) Resolve(category string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.buckets[category]; ok {
		return category, true
	}
	if _, ok := l.buckets[GlobalCategory]; ok {
		return GlobalCategory, true
	}
	return "", false
}

// Admit takes one token from the bucket of category. Categories without a
// bucket use the global bucket, or are admitted when none is declared.
func (l *Limiter) Admit(ctx context.Context, category string) (Decision, error) {
	resolved, ok := l.Resolve(category)
	if !ok {
		return Decision{Allowed: true, Category: category}, nil
	}

	now := l.now()
	decision, err := l.store.Take(ctx, resolved, now)
	if err != nil {
		if l.fallback == nil {
			return Decision{}, fmt.Errorf("rate limit store: %w", err)
		}
		l.logger.Warn("rate limit store failed, using fallback",
			observability.String("category", resolved),
			observability.Error(err))
		decision, err = l.fallback.Take(ctx, resolved, now)
		if err != nil {
			return Decision{}, fmt.Errorf("rate limit fallback store: %w", err)
		}
	}

	decision.Category = resolved
	if !decision.Allowed {
		if decision.RetryAfter < time.Millisecond {
			decision.RetryAfter = time.Millisecond
		}
		l.logger.Debug("rate limit exceeded",
			observability.String("category", resolved),
			observability.Duration("retryAfter", decision.RetryAfter))
	}

	return decision, nil
}

// Close releases the stores.
func (l *Limiter) Close() error {
	var errs []error
	if err := l.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if l.fallback != nil {
		if err := l.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
