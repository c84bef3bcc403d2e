// Package health provides liveness and readiness reporting.
package health

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a single dependency check.
const DefaultCheckTimeout = 2 * time.Second

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service cannot serve traffic.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates a non-critical dependency is failing.
	StatusDegraded Status = "degraded"
	// StatusDraining indicates the service is shutting down.
	StatusDraining Status = "draining"
)

// HealthResponse is the liveness report.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is the readiness report.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Ready reports whether traffic should be routed here.
func (r ReadinessResponse) Ready() bool {
	return r.Status == StatusHealthy || r.Status == StatusDegraded
}

// Check is the result of one dependency check.
type Check struct {
	Status    Status  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latencyMs"`
}

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

type dependency struct {
	check    CheckFunc
	critical bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout sets the per-check timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithMetrics records check results.
func WithMetrics(m *Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

// Checker aggregates dependency checks.
type Checker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	metrics   *Metrics
	now       func() time.Time
	draining  atomic.Bool

	mu   sync.RWMutex
	deps map[string]dependency
}

// NewChecker creates a checker reporting version.
func NewChecker(version string, opts ...Option) *Checker {
	c := &Checker{
		version: version,
		timeout: DefaultCheckTimeout,
		now:     time.Now,
		deps:    make(map[string]dependency),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startTime = c.now()
	return c
}

// Register adds a check. A failing critical check makes the service
// unhealthy; a failing non-critical one only degrades it.
func (c *Checker) Register(name string, check CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps[name] = dependency{check: check, critical: critical}
}

// Names returns the registered check names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.deps))
	for name := range c.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDraining marks the service as shutting down. Readiness fails from
// then on while liveness keeps passing.
func (c *Checker) SetDraining(draining bool) {
	c.draining.Store(draining)
}

// Health returns the liveness report.
func (c *Checker) Health() HealthResponse {
	now := c.now()
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    now.Sub(c.startTime).Round(time.Second).String(),
		Timestamp: now,
	}
}

// Readiness runs every check concurrently and aggregates the results.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	if c.draining.Load() {
		return ReadinessResponse{Status: StatusDraining, Timestamp: c.now()}
	}

	c.mu.RLock()
	deps := make(map[string]dependency, len(c.deps))
	for name, d := range c.deps {
		deps[name] = d
	}
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]Check, len(deps))
		status  = StatusHealthy
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, d := range deps {
		g.Go(func() error {
			check := c.run(gctx, name, d.check)

			mu.Lock()
			defer mu.Unlock()
			results[name] = check
			if check.Status == StatusHealthy {
				return nil
			}
			if d.critical {
				status = StatusUnhealthy
			} else if status == StatusHealthy {
				status = StatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()

	c.metrics.recordReadiness(status)

	return ReadinessResponse{Status: status, Checks: results, Timestamp: c.now()}
}

func (c *Checker) run(ctx context.Context, name string, fn CheckFunc) Check {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	c.metrics.recordCheck(name, err == nil, elapsed)

	check := Check{Status: StatusHealthy, LatencyMs: float64(elapsed.Microseconds()) / 1000}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}
