package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryStore keeps one rate.Limiter per category. Each limiter
// synchronizes itself; mu only guards the map.
type MemoryStore struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewMemoryStore creates full buckets for every category.
func NewMemoryStore(buckets map[string]Bucket) *MemoryStore {
	s := &MemoryStore{limiters: make(map[string]*rate.Limiter, len(buckets))}
	for category, b := range buckets {
		s.limiters[category] = rate.NewLimiter(rate.Limit(b.Rate()), b.Points)
	}
	return s
}

// SetBuckets implements Store. Existing categories keep their current
// tokens under the new rate and capacity; new categories start full.
func (s *MemoryStore) SetBuckets(buckets map[string]Bucket, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*rate.Limiter, len(buckets))
	for category, b := range buckets {
		if lim, ok := s.limiters[category]; ok {
			lim.SetLimitAt(now, rate.Limit(b.Rate()))
			lim.SetBurstAt(now, b.Points)
			next[category] = lim
			continue
		}
		next[category] = rate.NewLimiter(rate.Limit(b.Rate()), b.Points)
	}
	s.limiters = next
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, category string, now time.Time) (Decision, error) {
	s.mu.RLock()
	lim, ok := s.limiters[category]
	s.mu.RUnlock()
	if !ok {
		return Decision{}, fmt.Errorf("unknown rate limit category %q", category)
	}

	if lim.AllowN(now, 1) {
		return Decision{Allowed: true, Remaining: int(lim.TokensAt(now))}, nil
	}

	tokens := lim.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}
	missing := 1 - tokens
	wait := time.Duration(missing / float64(lim.Limit()) * float64(time.Second))

	return Decision{Allowed: false, RetryAfter: wait}, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
