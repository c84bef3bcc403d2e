// Package metrics aggregates per-operation usage statistics for the gateway.
//
// The Registry keeps the in-process view used for snapshots and average
// response time. When a Prometheus registerer is supplied, every record is
// mirrored into Prometheus collectors as well.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome is the result of one operation attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// OperationStats holds the counters of one operation.
type OperationStats struct {
	Count          int64   `json:"count"`
	TotalLatencyMs float64 `json:"totalLatencyMs"`
	SuccessCount   int64   `json:"successCount"`
	FailureCount   int64   `json:"failureCount"`
	CancelledCount int64   `json:"cancelledCount"`
}

// AverageLatencyMs returns the mean attempt latency of the operation.
func (s OperationStats) AverageLatencyMs() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.TotalLatencyMs / float64(s.Count)
}

// Snapshot is a point-in-time copy of the registry.
type Snapshot struct {
	Operations            map[string]OperationStats `json:"operations"`
	RateLimitHits         map[string]int64          `json:"rateLimitHits"`
	CacheHits             int64                     `json:"cacheHits"`
	CacheMisses           int64                     `json:"cacheMisses"`
	TotalInvocations      int64                     `json:"totalInvocations"`
	AverageResponseTimeMs float64                   `json:"averageResponseTimeMs"`
}

// CacheHitRate returns hits / (hits + misses) as a percentage.
func (s Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total) * 100
}

// OperationNames returns the recorded operation names sorted.
func (s Snapshot) OperationNames() []string {
	names := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry records gateway usage. It is safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	operations    map[string]*OperationStats
	rateLimitHits map[string]int64

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	prom *collectors
}

// Option configures a Registry.
type Option func(*Registry)

// WithPrometheus mirrors every record into collectors registered on reg.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(r *Registry) {
		r.prom = newCollectors(reg)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		operations:    make(map[string]*OperationStats),
		rateLimitHits: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordInvocation records one attempt of op.
func (r *Registry) RecordInvocation(op string, d time.Duration, outcome Outcome) {
	ms := float64(d) / float64(time.Millisecond)

	r.mu.Lock()
	stats, ok := r.operations[op]
	if !ok {
		stats = &OperationStats{}
		r.operations[op] = stats
	}
	stats.Count++
	stats.TotalLatencyMs += ms
	switch outcome {
	case OutcomeSuccess:
		stats.SuccessCount++
	case OutcomeCancelled:
		stats.CancelledCount++
	default:
		stats.FailureCount++
	}
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.invocations.WithLabelValues(op, string(outcome)).Inc()
		r.prom.duration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// RecordCancellation records an operation abandoned between attempts. It
// does not count as an attempt.
func (r *Registry) RecordCancellation(op string) {
	r.mu.Lock()
	stats, ok := r.operations[op]
	if !ok {
		stats = &OperationStats{}
		r.operations[op] = stats
	}
	stats.CancelledCount++
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.cancellations.WithLabelValues(op).Inc()
	}
}

// RecordRateLimitHit records a rejected admission for category.
func (r *Registry) RecordRateLimitHit(category string) {
	r.mu.Lock()
	r.rateLimitHits[category]++
	r.mu.Unlock()

	if r.prom != nil {
		r.prom.rateLimitHits.WithLabelValues(category).Inc()
	}
}

// RecordCacheHit records a response served from cache.
func (r *Registry) RecordCacheHit() {
	r.cacheHits.Add(1)
	if r.prom != nil {
		r.prom.cacheRequests.WithLabelValues("hit").Inc()
	}
}

// RecordCacheMiss records a cache lookup that fell through to execution.
func (r *Registry) RecordCacheMiss() {
	r.cacheMisses.Add(1)
	if r.prom != nil {
		r.prom.cacheRequests.WithLabelValues("miss").Inc()
	}
}

// Operation returns the stats of one operation.
func (r *Registry) Operation(op string) OperationStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if stats, ok := r.operations[op]; ok {
		return *stats
	}
	return OperationStats{}
}

// RateLimitHits returns the rejection count of category.
func (r *Registry) RateLimitHits(category string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rateLimitHits[category]
}

// CacheHits returns the number of cache hits.
func (r *Registry) CacheHits() int64 {
	return r.cacheHits.Load()
}

// CacheMisses returns the number of cache misses.
func (r *Registry) CacheMisses() int64 {
	return r.cacheMisses.Load()
}

// AverageResponseTimeMs returns sum(TotalLatencyMs) / sum(Count) across
// all operations, or 0 before the first attempt.
func (r *Registry) AverageResponseTimeMs() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total, count := r.totalsLocked()
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// Snapshot copies the current counters.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Operations:    make(map[string]OperationStats, len(r.operations)),
		RateLimitHits: make(map[string]int64, len(r.rateLimitHits)),
		CacheHits:     r.cacheHits.Load(),
		CacheMisses:   r.cacheMisses.Load(),
	}
	for op, stats := range r.operations {
		snap.Operations[op] = *stats
	}
	for category, hits := range r.rateLimitHits {
		snap.RateLimitHits[category] = hits
	}

	total, count := r.totalsLocked()
	snap.TotalInvocations = count
	if count > 0 {
		snap.AverageResponseTimeMs = total / float64(count)
	}

	return snap
}

func (r *Registry) totalsLocked() (float64, int64) {
	var total float64
	var count int64
	for _, stats := range r.operations {
		total += stats.TotalLatencyMs
		count += stats.Count
	}
	return total, count
}
