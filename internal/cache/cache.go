package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/opgw/internal/config"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

// Defaults.
const (
	DefaultTTL           = 300 * time.Second
	DefaultSweepInterval = time.Minute
	DefaultMaxEntries    = 10000
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found or has expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache closed")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")
)

// Cache is the main interface for caching.
type Cache interface {
	// Get returns the value stored under key, or ErrCacheMiss. The caller
	// owns the returned slice.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl <= 0 uses the default TTL. The
	// cache does not retain value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Sweep removes expired entries and returns how many were removed.
	Sweep(ctx context.Context) (int, error)

	// Close releases resources. The cache is unusable afterwards.
	Close() error
}

type options struct {
	logger        observability.Logger
	tracer        *observability.Tracer
	metrics       *Metrics
	now           func() time.Time
	defaultTTL    time.Duration
	sweepInterval time.Duration
	maxEntries    int
	keyPrefix     string
}

// Option configures a cache.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets the tracer used for cache spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithDefaultTTL sets the TTL used when Set receives ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.defaultTTL = ttl
	}
}

// WithSweepInterval sets the period of the memory sweep. Zero disables the
// scheduled sweep; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		o.sweepInterval = d
	}
}

// WithMaxEntries bounds the memory cache.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

// WithKeyPrefix sets the redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

func buildOptions(opts []Option) *options {
	o := &options{
		logger:        observability.NopLogger(),
		now:           time.Now,
		defaultTTL:    DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		maxEntries:    DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.defaultTTL <= 0 {
		o.defaultTTL = DefaultTTL
	}
	if o.maxEntries <= 0 {
		o.maxEntries = DefaultMaxEntries
	}
	return o
}

// New creates the cache selected by cfg. The redis backend needs client,
// which stays owned by the caller.
func New(cfg config.CacheConfig, client redis.UniversalClient, opts ...Option) (Cache, error) {
	base := []Option{
		WithDefaultTTL(cfg.DefaultTTL()),
		WithSweepInterval(cfg.SweepInterval()),
		WithMaxEntries(cfg.MaxEntries),
		WithKeyPrefix(cfg.KeyPrefix),
	}
	opts = append(base, opts...)

	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemory(opts...)
	case config.BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("%w: redis backend requires a client", ErrInvalidConfig)
		}
		return NewRedis(client, opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}

func resolveTTL(ttl, def time.Duration) time.Duration {
	if ttl <= 0 {
		return def
	}
	return ttl
}
