package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
server:
  addr: ":9090"
  shutdownTimeout: 10s
rateLimits:
  global:
    points: 10
    durationMs: 1000
  authOps:
    points: 2
    durationMs: 500
rateLimitStore:
  backend: redis
  keyPrefix: "test:rl:"
retryConfig:
  maxRetries: 5
  baseDelayMs: 100
  maxDelayMs: 2000
  jitterFactor: 0.2
cache:
  backend: redis
  defaultTtlSeconds: 60
  sweepIntervalMs: 5000
  maxEntries: 100
redis:
  url: redis://localhost:6379/0
circuitBreaker:
  enabled: false
backend:
  baseUrl: https://admin.example.com/v1/{tenant}
  requestTimeout: 5s
storage:
  enabled: true
  region: eu-west-1
  endpoint: http://localhost:9000
  usePathStyle: true
  bucketPattern: "opgw-{tenant}"
observability:
  logging:
    level: debug
    format: console
  tracing:
    enabled: true
    otlpEndpoint: localhost:4317
    samplingRate: 0.5
  metrics:
    enabled: false
`

func TestParse_FullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout.Duration())

	assert.Len(t, cfg.RateLimits, 2)
	assert.Equal(t, RateLimitConfig{Points: 2, DurationMs: 500}, cfg.RateLimits["authOps"])

	assert.Equal(t, BackendRedis, cfg.RateLimitStore.Backend)
	assert.Equal(t, "test:rl:", cfg.RateLimitStore.KeyPrefix)

	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.BaseDelay())
	assert.Equal(t, 2*time.Second, cfg.Retry.MaxDelay())
	assert.Equal(t, 0.2, cfg.Retry.JitterFactor)

	assert.Equal(t, time.Minute, cfg.Cache.DefaultTTL())
	assert.Equal(t, 5*time.Second, cfg.Cache.SweepInterval())
	assert.Equal(t, 100, cfg.Cache.MaxEntries)

	assert.False(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, "https://admin.example.com/v1/{tenant}", cfg.Backend.BaseURL)
	assert.Equal(t, "opgw-{tenant}", cfg.Storage.BucketPattern)
	assert.True(t, cfg.Storage.UsePathStyle)

	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, "stdout", cfg.Observability.Logging.Output)
	assert.True(t, cfg.Observability.Tracing.Enabled)
	assert.Equal(t, "opgw", cfg.Observability.Tracing.ServiceName)
	assert.False(t, cfg.Observability.Metrics.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestParse_EmptyDocumentUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("retryConfig:\n  maxDelayMs: 5000\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay())
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxDelay())
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, DefaultRateLimits(), cfg.RateLimits)
}

func TestParse_ZeroMaxRetriesKept(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte("retryConfig:\n  maxRetries: 0\n"))
	require.NoError(t, err)

	assert.Zero(t, cfg.Retry.MaxRetries)
	assert.NoError(t, cfg.Validate())
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("retryConfig:\n  maxAttempts: 5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxAttempts")
}

func TestParse_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("server: [unterminated"))
	assert.Error(t, err)
}

func TestParse_EnvSubstitution(t *testing.T) {
	t.Setenv("OPGW_TEST_REDIS_URL", "redis://cache:6379/1")
	t.Setenv("OPGW_TEST_POINTS", "42")

	data := `
redis:
  url: ${OPGW_TEST_REDIS_URL}
rateLimits:
  global:
    points: ${OPGW_TEST_POINTS}
    durationMs: ${OPGW_TEST_UNSET_DURATION:-2000}
storage:
  bucketPattern: "price-$${tenant}-{tenant}"
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, RateLimitConfig{Points: 42, DurationMs: 2000}, cfg.RateLimits["global"])
	assert.Equal(t, "price-${tenant}-{tenant}", cfg.Storage.BucketPattern)
}

func TestSubstituteEnvVars_UnsetWithoutDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "value: ", substituteEnvVars("value: ${OPGW_TEST_DEFINITELY_UNSET}"))
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "opgw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader("server:\n  addr: \":7070\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}

func TestResolveConfigPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "opgw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	resolved, err := ResolveConfigPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	_, err = ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = ResolveConfigPath("definitely-not-here-opgw.yaml")
	assert.Error(t, err)
}
