// Package server exposes the operation gateway over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/opgw/internal/catalog"
	"github.com/vyrodovalexey/opgw/internal/config"
	"github.com/vyrodovalexey/opgw/internal/gateway"
	"github.com/vyrodovalexey/opgw/internal/health"
	"github.com/vyrodovalexey/opgw/internal/metrics"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

// DefaultMaxBodyBytes caps invocation request bodies.
const DefaultMaxBodyBytes = 10 << 20

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Invoker is the gateway surface served over HTTP.
type Invoker interface {
	Invoke(ctx context.Context, op, tenantID string, args map[string]any, opts gateway.InvokeOptions) gateway.Result
	Metrics() *metrics.Registry
	Catalog() *catalog.Catalog
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTracer sets the tracer used for server spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithPrometheus serves gatherer on path.
func WithPrometheus(path string, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.gatherer = gatherer
	}
}

// WithHealth serves liveness and readiness from checker.
func WithHealth(checker *health.Checker) Option {
	return func(s *Server) {
		s.health = checker
	}
}

// WithMaxBodyBytes sets the request body limit. Zero disables it.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

// Server is the HTTP front of the gateway.
type Server struct {
	cfg          config.ServerConfig
	invoker      Invoker
	engine       *gin.Engine
	logger       observability.Logger
	tracer       *observability.Tracer
	metricsPath  string
	gatherer     prometheus.Gatherer
	health       *health.Checker
	maxBodyBytes int64

	mu         sync.Mutex
	httpServer *http.Server
	running    bool
}

// New builds a server and its routes.
func New(cfg config.ServerConfig, invoker Invoker, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		cfg:          cfg,
		invoker:      invoker,
		engine:       gin.New(),
		logger:       observability.NopLogger(),
		tracer:       observability.NopTracer(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = health.NewChecker("")
	}

	s.engine.Use(
		recovery(s.logger),
		requestID(),
		tracing(s.tracer),
		accessLog(s.logger),
	)
	if s.maxBodyBytes > 0 {
		s.engine.Use(maxBodySize(s.maxBodyBytes))
	}
	s.routes()

	return s
}

func (s *Server) routes() {
	h := &handlers{invoker: s.invoker, health: s.health, logger: s.logger}

	s.engine.GET("/healthz", h.liveness)
	s.engine.GET("/readyz", h.readiness)

	v1 := s.engine.Group("/v1")
	v1.POST("/tenants/:tenant/operations/:operation", h.invoke)
	v1.GET("/operations", h.operations)
	v1.GET("/metrics", h.metrics)

	if s.gatherer != nil && s.metricsPath != "" {
		s.engine.GET(s.metricsPath, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadTimeout:       s.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.cfg.ReadTimeout.Duration(),
		WriteTimeout:      s.cfg.WriteTimeout.Duration(),
	}
	srv := s.httpServer
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", observability.String("addr", ln.Addr().String()))

	err := srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown fails readiness, then drains in-flight requests. A ctx
// without deadline gets the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	srv := s.httpServer
	s.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout.Duration())
		defer cancel()
	}

	s.health.SetDraining(true)
	s.logger.Info("stopping HTTP server")
	start := time.Now()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped", observability.Duration("took", time.Since(start)))
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
