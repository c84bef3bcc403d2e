package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix prefixes bucket keys when no prefix is configured.
const DefaultRedisKeyPrefix = "opgw:ratelimit:"

// tokenBucketScript refills and takes from a bucket stored as a hash.
// KEYS[1] bucket key
// ARGV rate (tokens/s), burst, now (ms), requested
// Returns: allowed (0 or 1), remaining tokens, retry after in ms
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local requested = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1])
	local last_update = tonumber(data[2])

	if tokens == nil then
		tokens = burst
		last_update = now
	end

	local elapsed = math.max(0, now - last_update) / 1000.0
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_ms = 0
	if tokens >= requested then
		tokens = tokens - requested
		allowed = 1
	else
		retry_ms = math.ceil((requested - tokens) / rate * 1000)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'last_update', tostring(now))
	redis.call('EXPIRE', key, math.ceil(burst / rate) + 1)

	return {allowed, math.floor(tokens), retry_ms}
`)

// RedisStore shares buckets between gateway replicas through Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string

	mu      sync.RWMutex
	buckets map[string]Bucket
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string, buckets map[string]Bucket) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	s := &RedisStore{
		client: client,
		prefix: prefix,
	}
	s.SetBuckets(buckets, time.Time{})
	return s
}

// SetBuckets implements Store. Stored token counts are kept; the new
// capacity applies from the next Take.
func (s *RedisStore) SetBuckets(buckets map[string]Bucket, _ time.Time) {
	copied := make(map[string]Bucket, len(buckets))
	for category, b := range buckets {
		copied[category] = b
	}

	s.mu.Lock()
	s.buckets = copied
	s.mu.Unlock()
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, category string, now time.Time) (Decision, error) {
	s.mu.RLock()
	b, ok := s.buckets[category]
	s.mu.RUnlock()
	if !ok {
		return Decision{}, fmt.Errorf("unknown rate limit category %q", category)
	}

	res, err := tokenBucketScript.Run(ctx, s.client, []string{s.prefix + category},
		b.Rate(), b.Points, now.UnixMilli(), 1).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("token bucket script returned %d values", len(res))
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// Close implements Store. The client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
