package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vyrodovalexey/opgw/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the configuration and returns ValidationErrors listing
// every problem, or nil.
func (c *Config) Validate() error {
	v := &validator{}

	if c == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateServer(&c.Server)
	v.validateRateLimits(c.RateLimits)
	v.validateStore(&c.RateLimitStore, "rateLimitStore", c.Redis.URL)
	v.validateRetry(&c.Retry)
	v.validateCache(&c.Cache, c.Redis.URL)
	v.validateRedis(&c.Redis)
	v.validateCircuitBreaker(&c.CircuitBreaker)
	v.validateBackend(&c.Backend)
	v.validateStorage(&c.Storage)
	v.validateObservability(&c.Observability)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

type validator struct {
	errors ValidationErrors
}

func (v *validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *validator) validateServer(s *ServerConfig) {
	if err := util.ValidateListenAddr(s.Addr); err != nil {
		v.addError("server.addr", err.Error())
	}
	if s.ReadTimeout < 0 {
		v.addError("server.readTimeout", "must not be negative")
	}
	if s.WriteTimeout < 0 {
		v.addError("server.writeTimeout", "must not be negative")
	}
	if s.ShutdownTimeout < 0 {
		v.addError("server.shutdownTimeout", "must not be negative")
	}
}

func (v *validator) validateRateLimits(limits map[string]RateLimitConfig) {
	categories := make([]string, 0, len(limits))
	for category := range limits {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		rl := limits[category]
		path := "rateLimits." + category
		if strings.TrimSpace(category) == "" {
			v.addError("rateLimits", "category name is required")
		}
		if rl.Points <= 0 {
			v.addError(path+".points", "must be greater than 0")
		}
		if rl.DurationMs <= 0 {
			v.addError(path+".durationMs", "must be greater than 0")
		}
	}
}

func (v *validator) validateStore(s *StoreConfig, path, redisURL string) {
	switch s.Backend {
	case BackendMemory:
	case BackendRedis:
		if redisURL == "" {
			v.addError(path+".backend", "redis backend requires redis.url")
		}
	default:
		v.addError(path+".backend", fmt.Sprintf("unknown backend %q (memory, redis)", s.Backend))
	}
}

func (v *validator) validateRetry(r *RetryConfig) {
	if r.MaxRetries < 0 {
		v.addError("retryConfig.maxRetries", "must not be negative")
	}
	if r.BaseDelayMs < 0 {
		v.addError("retryConfig.baseDelayMs", "must not be negative")
	}
	if r.MaxDelayMs < 0 {
		v.addError("retryConfig.maxDelayMs", "must not be negative")
	}
	if r.BaseDelayMs > 0 && r.MaxDelayMs > 0 && r.MaxDelayMs < r.BaseDelayMs {
		v.addError("retryConfig.maxDelayMs", "must be greater than or equal to baseDelayMs")
	}
	if err := util.ValidateFraction(r.JitterFactor); err != nil {
		v.addError("retryConfig.jitterFactor", err.Error())
	}
}

func (v *validator) validateCache(c *CacheConfig, redisURL string) {
	v.validateStore(&StoreConfig{Backend: c.Backend}, "cache", redisURL)
	if c.DefaultTTLSeconds < 0 {
		v.addError("cache.defaultTtlSeconds", "must not be negative")
	}
	if c.SweepIntervalMs < 0 {
		v.addError("cache.sweepIntervalMs", "must not be negative")
	}
	if c.MaxEntries < 0 {
		v.addError("cache.maxEntries", "must not be negative")
	}
}

func (v *validator) validateRedis(r *RedisConfig) {
	if r.URL == "" {
		return
	}
	if !strings.HasPrefix(r.URL, "redis://") && !strings.HasPrefix(r.URL, "rediss://") {
		v.addError("redis.url", "must use the redis:// or rediss:// scheme")
	}
	if r.PoolSize < 0 {
		v.addError("redis.poolSize", "must not be negative")
	}
}

func (v *validator) validateCircuitBreaker(cb *CircuitBreakerConfig) {
	if !cb.Enabled {
		return
	}
	if cb.ConsecutiveFailures <= 0 {
		v.addError("circuitBreaker.consecutiveFailures", "must be greater than 0")
	}
	if cb.MaxRequests <= 0 {
		v.addError("circuitBreaker.maxRequests", "must be greater than 0")
	}
	if cb.Timeout <= 0 {
		v.addError("circuitBreaker.timeout", "must be greater than 0")
	}
}

func (v *validator) validateBackend(b *BackendConfig) {
	if b.BaseURL != "" {
		if err := util.ValidateURL(strings.ReplaceAll(b.BaseURL, "{tenant}", "tenant")); err != nil {
			v.addError("backend.baseUrl", err.Error())
		}
	}
	if b.RequestTimeout < 0 {
		v.addError("backend.requestTimeout", "must not be negative")
	}
	if b.MaxIdleConns < 0 || b.MaxIdleConnsPerHost < 0 || b.MaxConnsPerHost < 0 {
		v.addError("backend", "connection limits must not be negative")
	}
}

func (v *validator) validateStorage(s *StorageConfig) {
	if !s.Enabled {
		return
	}
	if err := util.ValidateNonEmpty(s.Region, "region"); err != nil {
		v.addError("storage.region", err.Error())
	}
	if s.Endpoint != "" {
		if err := util.ValidateURL(s.Endpoint); err != nil {
			v.addError("storage.endpoint", err.Error())
		}
	}
	if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
		v.addError("storage", "accessKeyId and secretAccessKey must be set together")
	}
	if !strings.Contains(s.BucketPattern, "{tenant}") {
		v.addError("storage.bucketPattern", "must contain {tenant}")
	}
}

func (v *validator) validateObservability(o *ObservabilityConfig) {
	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("observability.logging.level",
			fmt.Sprintf("unknown level %q (debug, info, warn, error)", o.Logging.Level))
	}
	switch o.Logging.Format {
	case "json", "console":
	default:
		v.addError("observability.logging.format",
			fmt.Sprintf("unknown format %q (json, console)", o.Logging.Format))
	}
	if err := util.ValidateFraction(o.Tracing.SamplingRate); err != nil {
		v.addError("observability.tracing.samplingRate", err.Error())
	}
	if o.Metrics.Enabled && !strings.HasPrefix(o.Metrics.Path, "/") {
		v.addError("observability.metrics.path", "must start with /")
	}
}
