package backend

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/opgw/internal/classify"
	"github.com/vyrodovalexey/opgw/internal/observability"
	"github.com/vyrodovalexey/opgw/internal/util"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = classify.NewError("unavailable", "backend pool closed")

var errNilHandle = errors.New("factory returned no handle")

// ErrFactoryPanic wraps a panic raised by a Factory.
var ErrFactoryPanic = errors.New("tenant handle factory panicked")

// Pool lazily constructs and caches one TenantHandle per tenant id.
type Pool struct {
	factory Factory
	opts    *options

	group singleflight.Group

	mu      sync.RWMutex
	handles map[string]*TenantHandle
	closed  bool
}

// NewPool creates a pool that builds handles with factory.
func NewPool(factory Factory, opts ...Option) *Pool {
	return &Pool{
		factory: factory,
		opts:    buildOptions(opts),
		handles: make(map[string]*TenantHandle),
	}
}

// Get returns the handle of tenantID, constructing it on first use.
// Concurrent first callers wait for one construction and all receive the
// same handle. A failed construction is not remembered; the next Get tries
// again. Construction is detached from the caller's cancellation so one
// caller giving up does not fail the others; ctx only bounds the wait.
func (p *Pool) Get(ctx context.Context, tenantID string) (*TenantHandle, error) {
	if err := util.ValidateTenantID(tenantID); err != nil {
		return nil, classify.Wrap("invalid-argument", err)
	}

	if h, err := p.lookup(tenantID); h != nil || err != nil {
		return h, err
	}

	ch := p.group.DoChan(tenantID, func() (any, error) {
		return p.construct(context.WithoutCancel(ctx), tenantID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*TenantHandle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) lookup(tenantID string) (*TenantHandle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	return p.handles[tenantID], nil
}

func (p *Pool) construct(ctx context.Context, tenantID string) (*TenantHandle, error) {
	// A flight that finished just before this one started has stored it.
	if h, err := p.lookup(tenantID); h != nil || err != nil {
		return h, err
	}

	ctx, span := p.opts.tracer.StartSpan(ctx, "backend.construct")
	defer span.End()

	h, err := p.build(ctx, tenantID)
	if err != nil {
		p.opts.metrics.recordConstruction("error")
		observability.RecordError(span, err)
		p.opts.logger.Error("tenant handle construction failed",
			observability.String("tenant", tenantID),
			observability.Error(err))
		return nil, err
	}
	if h == nil {
		p.opts.metrics.recordConstruction("error")
		return nil, errNilHandle
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = h.Close()
		return nil, ErrPoolClosed
	}
	p.handles[tenantID] = h
	n := len(p.handles)
	p.mu.Unlock()

	p.opts.metrics.recordConstruction("success")
	p.opts.metrics.setTenants(n)
	p.opts.logger.Info("tenant handle created",
		observability.String("tenant", tenantID),
		observability.Int("tenants", n))
	return h, nil
}

// build runs the factory. A panic becomes ErrFactoryPanic; singleflight
// would otherwise re-raise it on a fresh goroutine.
func (p *Pool) build(ctx context.Context, tenantID string) (h *TenantHandle, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.opts.logger.Error("tenant handle factory panicked",
				observability.String("tenant", tenantID),
				observability.Any("panic", r),
				observability.String("stack", string(debug.Stack())))
			h, err = nil, fmt.Errorf("%w: %v", ErrFactoryPanic, r)
		}
	}()
	return p.factory(ctx, tenantID)
}

// Remove closes and forgets the handle of tenantID. The next Get builds a
// new one.
func (p *Pool) Remove(tenantID string) error {
	p.mu.Lock()
	h, ok := p.handles[tenantID]
	delete(p.handles, tenantID)
	n := len(p.handles)
	p.mu.Unlock()

	if !ok {
		return nil
	}

	p.opts.metrics.setTenants(n)
	p.opts.logger.Info("tenant handle removed", observability.String("tenant", tenantID))
	return h.Close()
}

// Len returns the number of pooled handles.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handles)
}

// Tenants returns the pooled tenant ids in order.
func (p *Pool) Tenants() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.handles))
	for id := range p.handles {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Close tears down every handle. Later Get calls return ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	handles := p.handles
	p.handles = make(map[string]*TenantHandle)
	p.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.opts.metrics.setTenants(0)
	p.opts.logger.Info("backend pool closed", observability.Int("tenants", len(handles)))
	return errors.Join(errs...)
}
