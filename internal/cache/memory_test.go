package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemory(t *testing.T, opts ...Option) (*MemoryCache, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now), WithSweepInterval(0)}, opts...)
	c, err := NewMemory(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestMemoryCache_SetGet(t *testing.T) {
	t.Parallel()

	c, _ := newTestMemory(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte(`{"users":[]}`), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"users":[]}`), got)

	require.NoError(t, c.Set(ctx, "k", []byte(`"v2"`), time.Minute))
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"v2"`), got)
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	t.Parallel()

	c, _ := newTestMemory(t)
	ctx := context.Background()

	value := []byte(`{"uid":"u1"}`)
	require.NoError(t, c.Set(ctx, "k", value, time.Minute))
	value[2] = 'X'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"uid":"u1"}`), got)

	for i := range got {
		got[i] = 'X'
	}
	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"uid":"u1"}`), again)
}

func TestMemoryCache_Expiry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ttl     time.Duration
		advance time.Duration
		hit     bool
	}{
		{name: "before expiry", ttl: 300 * time.Second, advance: 299 * time.Second, hit: true},
		{name: "at expiry", ttl: 300 * time.Second, advance: 300 * time.Second, hit: false},
		{name: "after expiry", ttl: 300 * time.Second, advance: 301 * time.Second, hit: false},
		{name: "default ttl before expiry", ttl: 0, advance: DefaultTTL - time.Millisecond, hit: true},
		{name: "default ttl expired", ttl: 0, advance: DefaultTTL, hit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, clock := newTestMemory(t)
			ctx := context.Background()

			require.NoError(t, c.Set(ctx, "k", []byte("v"), tt.ttl))
			clock.Advance(tt.advance)

			_, err := c.Get(ctx, "k")
			if tt.hit {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestMemoryCache_GetRemovesExpiredEntry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c, clock := newTestMemory(t, WithMetrics(m))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	assert.Equal(t, 1, c.Len())

	clock.Advance(2 * time.Second)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.expiredTotal.WithLabelValues(backendMemory)))
}

func TestMemoryCache_Sweep(t *testing.T) {
	t.Parallel()

	c, clock := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short-1", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "short-2", []byte("b"), 2*time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("c"), time.Hour))

	clock.Advance(5 * time.Second)

	removed, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())

	got, err := c.Get(ctx, "long")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), got)

	removed, err = c.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestMemoryCache_ScheduledSweep(t *testing.T) {
	t.Parallel()

	c, err := NewMemory(WithSweepInterval(time.Second))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c, _ := newTestMemory(t, WithMaxEntries(2), WithMetrics(m))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))
	assert.Equal(t, 2, c.Len())

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = c.Get(ctx, "c")
	assert.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.evictionsTotal.WithLabelValues(backendMemory)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.entries.WithLabelValues(backendMemory)))
}

func TestMemoryCache_Delete(t *testing.T) {
	t.Parallel()

	c, _ := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Closed(t *testing.T) {
	t.Parallel()

	c, err := NewMemory()
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	ctx := context.Background()
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, 0), ErrClosed)
	assert.ErrorIs(t, c.Delete(ctx, "k"), ErrClosed)
	_, err = c.Sweep(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryCache_Concurrent(t *testing.T) {
	t.Parallel()

	c, _ := newTestMemory(t, WithMaxEntries(16))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, key, []byte{byte(j)}, time.Minute)
				_, _ = c.Get(ctx, key)
				_, _ = c.Sweep(ctx)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
}
