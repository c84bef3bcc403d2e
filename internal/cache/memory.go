package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/opgw/internal/observability"
)

const backendMemory = "memory"

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	opts *options

	mu     sync.Mutex
	lru    *simplelru.LRU[string, memoryEntry]
	closed bool

	sweeper *cron.Cron
}

// NewMemory creates a memory cache and starts its sweep schedule.
func NewMemory(opts ...Option) (*MemoryCache, error) {
	o := buildOptions(opts)

	l, err := simplelru.NewLRU[string, memoryEntry](o.maxEntries, nil)
	if err != nil {
		return nil, err
	}

	c := &MemoryCache{opts: o, lru: l}

	if o.sweepInterval > 0 {
		c.sweeper = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := c.sweeper.AddFunc("@every "+o.sweepInterval.String(), c.scheduledSweep); err != nil {
			return nil, err
		}
		c.sweeper.Start()
	}

	o.logger.Info("memory cache initialized",
		observability.Int("maxEntries", o.maxEntries),
		observability.Duration("defaultTTL", o.defaultTTL),
		observability.Duration("sweepInterval", o.sweepInterval))

	return c, nil
}

func (c *MemoryCache) startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return c.opts.tracer.StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", backendMemory),
			attribute.String("cache.key", key),
		),
	)
}

// Get implements Cache. An expired entry is removed and reported as a miss.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := c.startSpan(ctx, "cache.Get", key)
	defer span.End()
	defer c.opts.metrics.observe(backendMemory, "get", time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	entry, ok := c.lru.Get(key)
	if !ok {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	if !c.opts.now().Before(entry.expiresAt) {
		c.lru.Remove(key)
		c.opts.metrics.recordExpired(backendMemory, 1)
		c.opts.metrics.setEntries(backendMemory, c.lru.Len())
		span.SetAttributes(attribute.Bool("cache.hit", false), attribute.Bool("cache.expired", true))
		return nil, ErrCacheMiss
	}

	span.SetAttributes(attribute.Bool("cache.hit", true), attribute.Int("cache.value_size", len(entry.value)))
	return bytes.Clone(entry.value), nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := c.startSpan(ctx, "cache.Set", key)
	defer span.End()
	defer c.opts.metrics.observe(backendMemory, "set", time.Now())

	ttl = resolveTTL(ttl, c.opts.defaultTTL)
	span.SetAttributes(attribute.Int64("cache.ttl_ms", ttl.Milliseconds()))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if evicted := c.lru.Add(key, memoryEntry{value: bytes.Clone(value), expiresAt: c.opts.now().Add(ttl)}); evicted {
		c.opts.metrics.recordEviction(backendMemory)
	}
	c.opts.metrics.setEntries(backendMemory, c.lru.Len())

	c.opts.logger.Debug("cache set",
		observability.String("key", key),
		observability.Duration("ttl", ttl))
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	_, span := c.startSpan(ctx, "cache.Delete", key)
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	c.lru.Remove(key)
	c.opts.metrics.setEntries(backendMemory, c.lru.Len())
	return nil
}

// Sweep implements Cache.
func (c *MemoryCache) Sweep(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	now := c.opts.now()
	removed := 0
	for _, key := range c.lru.Keys() {
		entry, ok := c.lru.Peek(key)
		if ok && !now.Before(entry.expiresAt) {
			c.lru.Remove(key)
			removed++
		}
	}

	if removed > 0 {
		c.opts.metrics.recordExpired(backendMemory, removed)
		c.opts.metrics.setEntries(backendMemory, c.lru.Len())
	}
	return removed, nil
}

func (c *MemoryCache) scheduledSweep() {
	removed, err := c.Sweep(context.Background())
	if err != nil {
		return
	}
	if removed > 0 {
		c.opts.logger.Debug("cache sweep completed",
			observability.Int("removed", removed))
	}
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close stops the sweep schedule and drops every entry.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.lru.Purge()
	c.mu.Unlock()

	if c.sweeper != nil {
		<-c.sweeper.Stop().Done()
	}

	c.opts.logger.Info("memory cache closed")
	return nil
}
