package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/opgw/internal/backend"
	"github.com/vyrodovalexey/opgw/internal/cache"
	"github.com/vyrodovalexey/opgw/internal/catalog"
	"github.com/vyrodovalexey/opgw/internal/config"
	"github.com/vyrodovalexey/opgw/internal/gateway"
	"github.com/vyrodovalexey/opgw/internal/health"
	"github.com/vyrodovalexey/opgw/internal/metrics"
	"github.com/vyrodovalexey/opgw/internal/observability"
	"github.com/vyrodovalexey/opgw/internal/ratelimit"
	"github.com/vyrodovalexey/opgw/internal/retry"
	"github.com/vyrodovalexey/opgw/internal/server"
)

const defaultRedisPingTimeout = 5 * time.Second

// application holds all application components.
type application struct {
	config   *config.Config
	logger   observability.Logger
	tracer   *observability.Tracer
	registry *prometheus.Registry
	redis    redis.UniversalClient
	limiter  *ratelimit.Limiter
	gateway  *gateway.Gateway
	server   *server.Server
}

// newApplication wires every component from cfg. On error everything
// already built is released.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (app *application, err error) {
	app = &application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			_ = app.close(context.WithoutCancel(ctx))
			app = nil
		}
	}()

	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app.tracer, err = observability.NewTracer(ctx, cfg.Observability.Tracing)
	if err != nil {
		return app, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	if needsRedis(cfg) {
		app.redis, err = newRedisClient(ctx, cfg.Redis)
		if err != nil {
			return app, err
		}
	}

	app.limiter, err = newLimiter(cfg, app.redis, logger)
	if err != nil {
		return app, err
	}

	respCache, err := cache.New(cfg.Cache, app.redis,
		cache.WithLogger(logger),
		cache.WithTracer(app.tracer),
		cache.WithMetrics(cache.NewMetrics(app.registry)),
	)
	if err != nil {
		return app, fmt.Errorf("failed to create cache: %w", err)
	}

	backendOpts := []backend.Option{
		backend.WithLogger(logger),
		backend.WithTracer(app.tracer),
		backend.WithMetrics(backend.NewMetrics(app.registry)),
	}
	factory, err := backend.NewFactory(ctx, cfg.Backend, cfg.CircuitBreaker, cfg.Storage, backendOpts...)
	if err != nil {
		_ = respCache.Close()
		return app, fmt.Errorf("failed to create backend factory: %w", err)
	}

	reg := metrics.NewRegistry(metrics.WithPrometheus(app.registry))
	executor := retry.NewExecutor(&retry.Config{
		MaxRetries:   cfg.Retry.MaxRetries,
		BaseDelay:    cfg.Retry.BaseDelay(),
		MaxDelay:     cfg.Retry.MaxDelay(),
		JitterFactor: cfg.Retry.JitterFactor,
	},
		retry.WithRecorder(reg),
		retry.WithMetrics(retry.NewMetrics(app.registry)),
		retry.WithLogger(logger),
	)

	cat, err := catalog.Default()
	if err != nil {
		_ = respCache.Close()
		return app, fmt.Errorf("failed to build operation catalog: %w", err)
	}

	app.gateway, err = gateway.New(gateway.Deps{
		Catalog: cat,
		Pool:    backend.NewPool(factory, backendOpts...),
		Limiter: app.limiter,
		Cache:   respCache,
		Retry:   executor,
		Metrics: reg,
	}, gateway.WithLogger(logger), gateway.WithTracer(app.tracer))
	if err != nil {
		_ = respCache.Close()
		return app, fmt.Errorf("failed to create gateway: %w", err)
	}

	checker := health.NewChecker(version, health.WithMetrics(health.NewMetrics(app.registry)))
	if app.redis != nil {
		checker.Register("redis", health.RedisCheck(app.redis), true)
	}
	if cfg.Backend.BaseURL != "" && !strings.Contains(cfg.Backend.BaseURL, backend.TenantPlaceholder) {
		checker.Register("adminApi", health.HTTPCheck(backend.NewHTTPClient(cfg.Backend), cfg.Backend.BaseURL), false)
	}

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithTracer(app.tracer),
		server.WithHealth(checker),
	}
	if cfg.Observability.Metrics.Enabled {
		serverOpts = append(serverOpts, server.WithPrometheus(cfg.Observability.Metrics.Path, app.registry))
	}
	app.server = server.New(cfg.Server, app.gateway, serverOpts...)

	return app, nil
}

// reload applies the parts of a new configuration that can change at
// runtime. Everything else needs a restart.
func (a *application) reload(cfg *config.Config) {
	if err := a.limiter.Reconfigure(bucketsFromConfig(cfg.RateLimits)); err != nil {
		a.logger.Error("failed to apply rate limits", observability.Error(err))
		return
	}
	a.logger.Info("rate limits reloaded", observability.Int("buckets", len(cfg.RateLimits)))
}

// close releases components in reverse construction order. The gateway
// owns the limiter once built.
func (a *application) close(ctx context.Context) error {
	var errs []error

	if a.gateway != nil {
		errs = append(errs, a.gateway.Close())
	} else if a.limiter != nil {
		errs = append(errs, a.limiter.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

func newLimiter(cfg *config.Config, client redis.UniversalClient, logger observability.Logger) (*ratelimit.Limiter, error) {
	buckets := bucketsFromConfig(cfg.RateLimits)
	opts := []ratelimit.Option{ratelimit.WithLogger(logger)}

	if cfg.RateLimitStore.Backend == config.BackendRedis {
		opts = append(opts,
			ratelimit.WithStore(ratelimit.NewRedisStore(client, cfg.RateLimitStore.KeyPrefix, buckets)),
			ratelimit.WithFallback(ratelimit.NewMemoryStore(buckets)),
		)
	}

	limiter, err := ratelimit.New(buckets, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	return limiter, nil
}

func bucketsFromConfig(limits map[string]config.RateLimitConfig) map[string]ratelimit.Bucket {
	buckets := make(map[string]ratelimit.Bucket, len(limits))
	for category, rl := range limits {
		buckets[category] = ratelimit.Bucket{Points: rl.Points, Duration: rl.Duration()}
	}
	return buckets
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Cache.Backend == config.BackendRedis || cfg.RateLimitStore.Backend == config.BackendRedis
}

func newRedisClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout.Duration()
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout.Duration()
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout.Duration()
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, defaultRedisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
