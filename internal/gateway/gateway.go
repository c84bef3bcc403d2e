package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/opgw/internal/backend"
	"github.com/vyrodovalexey/opgw/internal/cache"
	"github.com/vyrodovalexey/opgw/internal/catalog"
	"github.com/vyrodovalexey/opgw/internal/classify"
	"github.com/vyrodovalexey/opgw/internal/metrics"
	"github.com/vyrodovalexey/opgw/internal/observability"
	"github.com/vyrodovalexey/opgw/internal/ratelimit"
	"github.com/vyrodovalexey/opgw/internal/retry"
)

// ErrMissingDependency is returned by New when a required dependency is nil.
var ErrMissingDependency = errors.New("missing gateway dependency")

// Executor performs one operation against a tenant handle.
type Executor interface {
	Execute(ctx context.Context, op string, h *backend.TenantHandle, args map[string]any) (any, error)
}

// TenantPool hands out tenant handles.
type TenantPool interface {
	Get(ctx context.Context, tenantID string) (*backend.TenantHandle, error)
	Close() error
}

// Admitter decides rate limit admission.
type Admitter interface {
	Admit(ctx context.Context, category string) (ratelimit.Decision, error)
	Close() error
}

// Deps are the collaborators of a Gateway. Catalog, Pool and Limiter are
// required. A nil Executor dispatches through the catalog handlers, a nil
// Cache uses a memory cache with defaults, a nil Metrics a fresh registry,
// and a nil Retry the default policy recording into Metrics. A Retry
// supplied here should record into the same Metrics.
type Deps struct {
	Catalog  *catalog.Catalog
	Executor Executor
	Pool     TenantPool
	Limiter  Admitter
	Cache    cache.Cache
	Retry    *retry.Executor
	Metrics  *metrics.Registry
}

// InvokeOptions tune one invocation.
type InvokeOptions struct {
	// Timeout bounds the whole invocation, retries included. Zero means no
	// bound beyond the caller's context.
	Timeout time.Duration

	// BypassCache skips the cache lookup. A successful result is still
	// stored.
	BypassCache bool
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

// Gateway is the operation entry point. It is safe for concurrent use.
type Gateway struct {
	catalog  *catalog.Catalog
	executor Executor
	pool     TenantPool
	limiter  Admitter
	cache    cache.Cache
	retry    *retry.Executor
	metrics  *metrics.Registry

	logger observability.Logger
	tracer *observability.Tracer
}

// New creates a Gateway from deps.
func New(deps Deps, opts ...Option) (*Gateway, error) {
	switch {
	case deps.Catalog == nil:
		return nil, fmt.Errorf("%w: catalog", ErrMissingDependency)
	case deps.Pool == nil:
		return nil, fmt.Errorf("%w: pool", ErrMissingDependency)
	case deps.Limiter == nil:
		return nil, fmt.Errorf("%w: limiter", ErrMissingDependency)
	}

	g := &Gateway{
		catalog:  deps.Catalog,
		executor: deps.Executor,
		pool:     deps.Pool,
		limiter:  deps.Limiter,
		cache:    deps.Cache,
		retry:    deps.Retry,
		metrics:  deps.Metrics,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.executor == nil {
		g.executor = catalog.NewDispatcher(g.catalog)
	}
	if g.metrics == nil {
		g.metrics = metrics.NewRegistry()
	}
	if g.retry == nil {
		g.retry = retry.NewExecutor(retry.DefaultConfig(),
			retry.WithRecorder(g.metrics),
			retry.WithLogger(g.logger))
	}
	if g.cache == nil {
		c, err := cache.NewMemory(cache.WithLogger(g.logger), cache.WithTracer(g.tracer))
		if err != nil {
			return nil, fmt.Errorf("create response cache: %w", err)
		}
		g.cache = c
	}

	return g, nil
}

// Metrics returns the usage registry.
func (g *Gateway) Metrics() *metrics.Registry {
	return g.metrics
}

// Catalog returns the operation catalog.
func (g *Gateway) Catalog() *catalog.Catalog {
	return g.catalog
}

// Invoke runs op for tenantID. It never panics and never returns a
// malformed envelope.
func (g *Gateway) Invoke(
	ctx context.Context,
	op, tenantID string,
	args map[string]any,
	opts InvokeOptions,
) (res Result) {
	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = observability.ContextWithRequestID(ctx, requestID)
	}
	ctx = observability.ContextWithTenantID(ctx, tenantID)

	ctx, span := g.tracer.StartSpan(ctx, "gateway.Invoke",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation", op),
			attribute.String("tenant", tenantID),
			attribute.String("request_id", requestID),
		),
	)
	defer span.End()

	logger := g.logger.WithContext(ctx).With(observability.String("operation", op))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			observability.RecordError(span, err)
			logger.Error("operation panicked",
				observability.Any("panic", r),
				observability.String("stack", string(debug.Stack())))
			res = failure(classify.Unknown(), "internal error while executing "+op)
		}
		span.SetAttributes(attribute.Bool("success", res.Success))
	}()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	entry, ok := g.catalog.Lookup(op)
	if !ok {
		logger.Debug("unknown operation")
		return failure(classify.Classify(catalog.ErrUnknownOperation), "unknown operation: "+op)
	}
	span.SetAttributes(attribute.String("category", entry.Category))

	var cacheKey string
	if entry.Cacheable {
		key, err := cache.Key(op, tenantID, args)
		if err != nil {
			return failure(classify.Of(classify.CategoryAuth, classify.TypeInvalidInput), err.Error())
		}
		cacheKey = key

		if !opts.BypassCache {
			if data, hit := g.lookup(ctx, cacheKey, logger); hit {
				g.metrics.RecordCacheHit()
				span.SetAttributes(attribute.Bool("cache.hit", true))
				return success(data)
			}
			g.metrics.RecordCacheMiss()
			span.SetAttributes(attribute.Bool("cache.hit", false))
		}
	}

	decision, err := g.limiter.Admit(ctx, entry.Category)
	if err != nil {
		observability.RecordError(span, err)
		logger.Error("rate limit admission failed", observability.Error(err))
		return failure(classify.Of(classify.CategoryNetwork, classify.TypeServiceUnavailable),
			"rate limiter unavailable: "+err.Error())
	}
	if !decision.Allowed {
		g.metrics.RecordRateLimitHit(decision.Category)
		span.SetAttributes(attribute.Bool("rate_limited", true))
		logger.Debug("invocation rate limited",
			observability.String("category", decision.Category),
			observability.Duration("retryAfter", decision.RetryAfter))
		return rateLimited(decision)
	}

	value, err := g.retry.Run(ctx, op, func(ctx context.Context) (any, error) {
		h, err := g.pool.Get(ctx, tenantID)
		if errors.Is(err, backend.ErrPoolClosed) {
			return nil, retry.Permanent(err)
		}
		if err != nil {
			return nil, err
		}
		return h.Breaker.Execute(ctx, func() (any, error) {
			return g.executor.Execute(ctx, op, h, args)
		})
	})
	if err != nil {
		observability.RecordError(span, err)
		return g.failed(logger, span, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.Error("operation result is not JSON encodable", observability.Error(err))
		return failure(classify.Unknown(), "encode result: "+err.Error())
	}

	if entry.Cacheable {
		// Stored even when the caller has gone away.
		if err := g.cache.Set(context.WithoutCancel(ctx), cacheKey, data, entry.TTL); err != nil {
			logger.Warn("response cache store failed", observability.Error(err))
		}
	}

	return success(data)
}

// lookup treats cache failures as misses.
func (g *Gateway) lookup(ctx context.Context, key string, logger observability.Logger) (json.RawMessage, bool) {
	data, err := g.cache.Get(ctx, key)
	switch {
	case err == nil:
		return data, true
	case errors.Is(err, cache.ErrCacheMiss):
		return nil, false
	default:
		logger.Warn("response cache lookup failed", observability.Error(err))
		return nil, false
	}
}

func (g *Gateway) failed(logger observability.Logger, span trace.Span, err error) Result {
	c := classify.Classify(err)
	attempts := 0
	cause := err

	var rerr *retry.Error
	if errors.As(err, &rerr) {
		c = rerr.Classification
		attempts = rerr.Attempts
		if rerr.Cause != nil {
			cause = rerr.Cause
		}
	}

	span.SetAttributes(
		attribute.Int("attempts", attempts),
		attribute.String("error.classification", c.String()),
	)
	logger.Warn("operation failed",
		observability.String("classification", c.String()),
		observability.Int("attempts", attempts),
		observability.Error(cause))

	res := failure(c, cause.Error())
	res.Error.Attempts = attempts
	return res
}

func rateLimited(d ratelimit.Decision) Result {
	res := failure(classify.Of(classify.CategoryQuota, classify.TypeExceeded),
		fmt.Sprintf("rate limit exceeded for %s, retry after %dms", d.Category, d.RetryAfterMs()))
	res.Error.RetryAfterMs = d.RetryAfterMs()
	return res
}

// Close stops the cache sweeper and tears down pooled tenant handles and
// the rate limiter.
func (g *Gateway) Close() error {
	return errors.Join(g.cache.Close(), g.pool.Close(), g.limiter.Close())
}
