package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/opgw/internal/observability"
	"github.com/vyrodovalexey/opgw/internal/retry"
)

const backendRedis = "redis"

// DefaultRedisKeyPrefix prefixes entry keys when no prefix is configured.
const DefaultRedisKeyPrefix = "opgw:cache:"

// redisRetryConfig returns the retry configuration for Redis operations.
func redisRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries: 2,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   500 * time.Millisecond,
	}
}

// isRetryableRedisError reports connection-level failures. Misses and
// context errors are final.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, redis.Nil) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// RedisCache stores entries as redis strings with a native TTL.
type RedisCache struct {
	opts   *options
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a cache over client. Closing the cache does not close
// the client.
func NewRedis(client redis.UniversalClient, opts ...Option) *RedisCache {
	o := buildOptions(opts)
	prefix := o.keyPrefix
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}

	o.logger.Info("redis cache initialized",
		observability.String("keyPrefix", prefix),
		observability.Duration("defaultTTL", o.defaultTTL))

	return &RedisCache{opts: o, client: client, prefix: prefix}
}

func (c *RedisCache) startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return c.opts.tracer.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", backendRedis),
			attribute.String("cache.key", key),
		),
	)
}

func (c *RedisCache) do(ctx context.Context, op, key string, fn func() error) error {
	return retry.Do(ctx, redisRetryConfig(), fn, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			c.opts.logger.Debug("retrying redis "+op,
				observability.String("key", key),
				observability.Int("attempt", attempt),
				observability.Error(err))
		},
	})
}

func (c *RedisCache) fail(span trace.Span, op, key string, err error) error {
	c.opts.metrics.recordError(backendRedis, op)
	observability.RecordError(span, err)
	c.opts.logger.Warn("redis "+op+" failed",
		observability.String("key", key),
		observability.Error(err))
	return err
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := c.startSpan(ctx, "cache.Get", key)
	defer span.End()
	defer c.opts.metrics.observe(backendRedis, "get", time.Now())

	var value []byte
	err := c.do(ctx, "get", key, func() error {
		v, err := c.client.Get(ctx, c.prefix+key).Bytes()
		if err != nil {
			return err
		}
		value = v
		return nil
	})

	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true), attribute.Int("cache.value_size", len(value)))
		return value, nil
	case errors.Is(err, redis.Nil):
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	default:
		return nil, c.fail(span, "get", key, err)
	}
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := c.startSpan(ctx, "cache.Set", key)
	defer span.End()
	defer c.opts.metrics.observe(backendRedis, "set", time.Now())

	ttl = resolveTTL(ttl, c.opts.defaultTTL)
	span.SetAttributes(attribute.Int64("cache.ttl_ms", ttl.Milliseconds()))

	err := c.do(ctx, "set", key, func() error {
		return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	})
	if err != nil {
		return c.fail(span, "set", key, err)
	}
	return nil
}

// Delete implements Cache.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, span := c.startSpan(ctx, "cache.Delete", key)
	defer span.End()

	err := c.do(ctx, "delete", key, func() error {
		return c.client.Del(ctx, c.prefix+key).Err()
	})
	if err != nil {
		return c.fail(span, "delete", key, err)
	}
	return nil
}

// Sweep implements Cache. Redis expires keys itself.
func (c *RedisCache) Sweep(context.Context) (int, error) {
	return 0, nil
}

// Close implements Cache. The client is owned by the caller.
func (c *RedisCache) Close() error {
	return nil
}
