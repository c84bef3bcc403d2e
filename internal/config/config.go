package config

import (
	"time"

	"github.com/vyrodovalexey/opgw/internal/observability"
)

// Store backends shared by the cache and the rate limiter.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Default values.
const (
	DefaultServerAddr        = ":8080"
	DefaultRateLimitDuration = 60000
	DefaultMaxRetries        = 3
	DefaultBaseDelayMs       = 1000
	DefaultMaxDelayMs        = 30000
	DefaultCacheTTLSeconds   = 300
	DefaultSweepIntervalMs   = 60000
	DefaultCacheMaxEntries   = 10000
	DefaultMetricsPath       = "/metrics"
	DefaultServiceName       = "opgw"
	DefaultStorageRegion     = "us-east-1"
	DefaultBucketPattern     = "{tenant}"
)

// Config is the root gateway configuration.
type Config struct {
	Server         ServerConfig               `yaml:"server" json:"server"`
	RateLimits     map[string]RateLimitConfig `yaml:"rateLimits" json:"rateLimits"`
	RateLimitStore StoreConfig                `yaml:"rateLimitStore" json:"rateLimitStore"`
	Retry          RetryConfig                `yaml:"retryConfig" json:"retryConfig"`
	Cache          CacheConfig                `yaml:"cache" json:"cache"`
	Redis          RedisConfig                `yaml:"redis" json:"redis"`
	CircuitBreaker CircuitBreakerConfig       `yaml:"circuitBreaker" json:"circuitBreaker"`
	Backend        BackendConfig              `yaml:"backend" json:"backend"`
	Storage        StorageConfig              `yaml:"storage" json:"storage"`
	Observability  ObservabilityConfig        `yaml:"observability" json:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr" json:"addr"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// RateLimitConfig is one category bucket: Points requests per DurationMs.
type RateLimitConfig struct {
	Points     int   `yaml:"points" json:"points"`
	DurationMs int64 `yaml:"durationMs" json:"durationMs"`
}

// Duration returns the refill window.
func (r RateLimitConfig) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// StoreConfig selects where shared state lives.
type StoreConfig struct {
	Backend   string `yaml:"backend" json:"backend"`
	KeyPrefix string `yaml:"keyPrefix" json:"keyPrefix"`
}

// RetryConfig configures the retry executor.
type RetryConfig struct {
	// MaxRetries of 0 disables retries. DefaultConfig sets 3, so an omitted
	// key keeps the default.
	MaxRetries   int     `yaml:"maxRetries" json:"maxRetries"`
	BaseDelayMs  int64   `yaml:"baseDelayMs" json:"baseDelayMs"`
	MaxDelayMs   int64   `yaml:"maxDelayMs" json:"maxDelayMs"`
	JitterFactor float64 `yaml:"jitterFactor" json:"jitterFactor"`
}

// BaseDelay returns the first backoff wait.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Backend           string `yaml:"backend" json:"backend"`
	DefaultTTLSeconds int    `yaml:"defaultTtlSeconds" json:"defaultTtlSeconds"`
	SweepIntervalMs   int64  `yaml:"sweepIntervalMs" json:"sweepIntervalMs"`
	MaxEntries        int    `yaml:"maxEntries" json:"maxEntries"`
	KeyPrefix         string `yaml:"keyPrefix" json:"keyPrefix"`
}

// DefaultTTL returns the TTL applied when an operation declares none.
func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// SweepInterval returns the period of the expired-entry sweep.
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMs) * time.Millisecond
}

// RedisConfig is the connection shared by the redis cache and the redis
// rate limit store.
type RedisConfig struct {
	URL          string   `yaml:"url" json:"url"`
	PoolSize     int      `yaml:"poolSize" json:"poolSize"`
	DialTimeout  Duration `yaml:"dialTimeout" json:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

// CircuitBreakerConfig configures the per-tenant circuit breaker.
type CircuitBreakerConfig struct {
	Enabled             bool     `yaml:"enabled" json:"enabled"`
	ConsecutiveFailures int      `yaml:"consecutiveFailures" json:"consecutiveFailures"`
	MaxRequests         int      `yaml:"maxRequests" json:"maxRequests"`
	Interval            Duration `yaml:"interval" json:"interval"`
	Timeout             Duration `yaml:"timeout" json:"timeout"`
}

// BackendConfig configures the per-tenant HTTP client of the admin API.
type BackendConfig struct {
	// BaseURL may contain {tenant}, replaced by the tenant id.
	BaseURL             string   `yaml:"baseUrl" json:"baseUrl"`
	RequestTimeout      Duration `yaml:"requestTimeout" json:"requestTimeout"`
	MaxIdleConns        int      `yaml:"maxIdleConns" json:"maxIdleConns"`
	MaxIdleConnsPerHost int      `yaml:"maxIdleConnsPerHost" json:"maxIdleConnsPerHost"`
	MaxConnsPerHost     int      `yaml:"maxConnsPerHost" json:"maxConnsPerHost"`
	IdleConnTimeout     Duration `yaml:"idleConnTimeout" json:"idleConnTimeout"`
}

// StorageConfig configures the per-tenant S3-compatible object storage.
type StorageConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId" json:"-"`
	SecretAccessKey string `yaml:"secretAccessKey" json:"-"`
	UsePathStyle    bool   `yaml:"usePathStyle" json:"usePathStyle"`

	// BucketPattern names the tenant bucket; {tenant} is replaced.
	BucketPattern string `yaml:"bucketPattern" json:"bucketPattern"`
}

// ObservabilityConfig groups logging, tracing and metrics export.
type ObservabilityConfig struct {
	Logging observability.LogConfig    `yaml:"logging" json:"logging"`
	Tracing observability.TracerConfig `yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig              `yaml:"metrics" json:"metrics"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// DefaultRateLimits returns the standard category buckets.
func DefaultRateLimits() map[string]RateLimitConfig {
	return map[string]RateLimitConfig{
		"global":     {Points: 100, DurationMs: DefaultRateLimitDuration},
		"authOps":    {Points: 50, DurationMs: DefaultRateLimitDuration},
		"storageOps": {Points: 100, DurationMs: DefaultRateLimitDuration},
		"dataOps":    {Points: 200, DurationMs: DefaultRateLimitDuration},
		"hostingOps": {Points: 20, DurationMs: DefaultRateLimitDuration},
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(2 * time.Minute),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		RateLimits:     DefaultRateLimits(),
		RateLimitStore: StoreConfig{Backend: BackendMemory},
		Retry: RetryConfig{
			MaxRetries:  DefaultMaxRetries,
			BaseDelayMs: DefaultBaseDelayMs,
			MaxDelayMs:  DefaultMaxDelayMs,
		},
		Cache: CacheConfig{
			Backend:           BackendMemory,
			DefaultTTLSeconds: DefaultCacheTTLSeconds,
			SweepIntervalMs:   DefaultSweepIntervalMs,
			MaxEntries:        DefaultCacheMaxEntries,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             true,
			ConsecutiveFailures: 5,
			MaxRequests:         1,
			Interval:            Duration(time.Minute),
			Timeout:             Duration(30 * time.Second),
		},
		Backend: BackendConfig{
			RequestTimeout:      Duration(30 * time.Second),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     100,
			IdleConnTimeout:     Duration(90 * time.Second),
		},
		Storage: StorageConfig{
			Region:        DefaultStorageRegion,
			BucketPattern: DefaultBucketPattern,
		},
		Observability: ObservabilityConfig{
			Logging: observability.DefaultLogConfig(),
			Tracing: observability.TracerConfig{
				ServiceName:  DefaultServiceName,
				SamplingRate: 1.0,
				Insecure:     true,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    DefaultMetricsPath,
			},
		},
	}
}

// ApplyDefaults fills zero values with defaults. An empty rate limit map
// gets the standard buckets. retryConfig.maxRetries is never touched:
// zero disables retries.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	setDuration(&c.Server.ReadTimeout, d.Server.ReadTimeout)
	setDuration(&c.Server.WriteTimeout, d.Server.WriteTimeout)
	setDuration(&c.Server.ShutdownTimeout, d.Server.ShutdownTimeout)

	if len(c.RateLimits) == 0 {
		c.RateLimits = d.RateLimits
	}
	for category, rl := range c.RateLimits {
		if rl.DurationMs == 0 {
			rl.DurationMs = DefaultRateLimitDuration
			c.RateLimits[category] = rl
		}
	}
	setString(&c.RateLimitStore.Backend, d.RateLimitStore.Backend)

	setInt64(&c.Retry.BaseDelayMs, d.Retry.BaseDelayMs)
	setInt64(&c.Retry.MaxDelayMs, d.Retry.MaxDelayMs)

	setString(&c.Cache.Backend, d.Cache.Backend)
	setInt(&c.Cache.DefaultTTLSeconds, d.Cache.DefaultTTLSeconds)
	setInt64(&c.Cache.SweepIntervalMs, d.Cache.SweepIntervalMs)
	setInt(&c.Cache.MaxEntries, d.Cache.MaxEntries)

	setInt(&c.Redis.PoolSize, d.Redis.PoolSize)
	setDuration(&c.Redis.DialTimeout, d.Redis.DialTimeout)
	setDuration(&c.Redis.ReadTimeout, d.Redis.ReadTimeout)
	setDuration(&c.Redis.WriteTimeout, d.Redis.WriteTimeout)

	setInt(&c.CircuitBreaker.ConsecutiveFailures, d.CircuitBreaker.ConsecutiveFailures)
	setInt(&c.CircuitBreaker.MaxRequests, d.CircuitBreaker.MaxRequests)
	setDuration(&c.CircuitBreaker.Interval, d.CircuitBreaker.Interval)
	setDuration(&c.CircuitBreaker.Timeout, d.CircuitBreaker.Timeout)

	setDuration(&c.Backend.RequestTimeout, d.Backend.RequestTimeout)
	setInt(&c.Backend.MaxIdleConns, d.Backend.MaxIdleConns)
	setInt(&c.Backend.MaxIdleConnsPerHost, d.Backend.MaxIdleConnsPerHost)
	setInt(&c.Backend.MaxConnsPerHost, d.Backend.MaxConnsPerHost)
	setDuration(&c.Backend.IdleConnTimeout, d.Backend.IdleConnTimeout)

	setString(&c.Storage.Region, d.Storage.Region)
	setString(&c.Storage.BucketPattern, d.Storage.BucketPattern)

	setString(&c.Observability.Logging.Level, d.Observability.Logging.Level)
	setString(&c.Observability.Logging.Format, d.Observability.Logging.Format)
	setString(&c.Observability.Logging.Output, d.Observability.Logging.Output)
	setString(&c.Observability.Tracing.ServiceName, d.Observability.Tracing.ServiceName)
	setString(&c.Observability.Metrics.Path, d.Observability.Metrics.Path)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setInt64(dst *int64, def int64) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *Duration, def Duration) {
	if *dst == 0 {
		*dst = def
	}
}
