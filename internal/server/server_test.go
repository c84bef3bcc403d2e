package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/opgw/internal/backend"
	"github.com/vyrodovalexey/opgw/internal/catalog"
	"github.com/vyrodovalexey/opgw/internal/classify"
	"github.com/vyrodovalexey/opgw/internal/config"
	"github.com/vyrodovalexey/opgw/internal/gateway"
	"github.com/vyrodovalexey/opgw/internal/health"
	"github.com/vyrodovalexey/opgw/internal/metrics"
	"github.com/vyrodovalexey/opgw/internal/observability"
)

func init() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

type invocation struct {
	op, tenant string
	args       map[string]any
	opts       gateway.InvokeOptions
	requestID  string
}

type fakeInvoker struct {
	mu      sync.Mutex
	calls   []invocation
	result  gateway.Result
	panics  bool
	catalog *catalog.Catalog
	metrics *metrics.Registry
}

func (f *fakeInvoker) Invoke(ctx context.Context, op, tenantID string, args map[string]any, opts gateway.InvokeOptions) gateway.Result {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, invocation{
		op:        op,
		tenant:    tenantID,
		args:      args,
		opts:      opts,
		requestID: observability.RequestIDFromContext(ctx),
	})
	return f.result
}

func (f *fakeInvoker) Metrics() *metrics.Registry { return f.metrics }

func (f *fakeInvoker) Catalog() *catalog.Catalog { return f.catalog }

func (f *fakeInvoker) last(t *testing.T) invocation {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func noop(context.Context, *backend.TenantHandle, map[string]any) (any, error) {
	return nil, nil
}

func newFakeInvoker(t *testing.T) *fakeInvoker {
	t.Helper()
	cat, err := catalog.New(
		catalog.Entry{Name: "getUser", Category: catalog.CategoryAuth, Cacheable: true, TTL: time.Minute, Handler: noop},
		catalog.Entry{Name: "createUser", Category: catalog.CategoryAuth, Handler: noop},
	)
	require.NoError(t, err)
	return &fakeInvoker{
		catalog: cat,
		metrics: metrics.NewRegistry(),
		result:  gateway.Result{Success: true, Data: json.RawMessage(`{"uid":"u1"}`)},
	}
}

func failed(category classify.Category, typ classify.Type) gateway.Result {
	return envelope(classify.Of(category, typ), "failed")
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInvoke_PassesRequestThrough(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	srv := New(config.ServerConfig{}, inv)

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/tenants/acme/operations/getUser",
		`{"args":{"uid":"u1"},"timeoutMs":1500,"bypassCache":true}`,
		RequestIDHeader, "req-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
	assert.JSONEq(t, `{"success":true,"data":{"uid":"u1"}}`, rec.Body.String())

	call := inv.last(t)
	assert.Equal(t, "getUser", call.op)
	assert.Equal(t, "acme", call.tenant)
	assert.Equal(t, map[string]any{"uid": "u1"}, call.args)
	assert.Equal(t, 1500*time.Millisecond, call.opts.Timeout)
	assert.True(t, call.opts.BypassCache)
	assert.Equal(t, "req-1", call.requestID)
}

func TestInvoke_EmptyBody(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	srv := New(config.ServerConfig{}, inv)

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/tenants/acme/operations/listUsers", "")

	require.Equal(t, http.StatusOK, rec.Code)
	call := inv.last(t)
	assert.Nil(t, call.args)
	assert.Zero(t, call.opts.Timeout)
	assert.False(t, call.opts.BypassCache)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, rec.Header().Get(RequestIDHeader), call.requestID)
}

func TestInvoke_NoCacheHeader(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	srv := New(config.ServerConfig{}, inv)

	do(t, srv.Handler(), http.MethodPost, "/v1/tenants/acme/operations/getUser", `{}`,
		"Cache-Control", "max-age=0, No-Cache")

	assert.True(t, inv.last(t).opts.BypassCache)
}

func TestInvoke_RejectsBadBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed json", body: `{"args":`, status: http.StatusBadRequest},
		{name: "args not an object", body: `{"args":[1,2]}`, status: http.StatusBadRequest},
		{name: "negative timeout", body: `{"timeoutMs":-1}`, status: http.StatusBadRequest},
		{name: "too large", body: `{"args":{"x":"` + strings.Repeat("a", 256) + `"}}`, status: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inv := newFakeInvoker(t)
			srv := New(config.ServerConfig{}, inv, WithMaxBodyBytes(128))

			rec := do(t, srv.Handler(), http.MethodPost, "/v1/tenants/acme/operations/getUser", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			var res gateway.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, classify.CategoryAuth, res.Error.Category)
			assert.Equal(t, classify.TypeInvalidInput, res.Error.Type)
			assert.NotEmpty(t, res.Error.Suggestion)
			assert.Empty(t, inv.calls)
		})
	}
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  gateway.Result
		want int
	}{
		{name: "success", res: gateway.Result{Success: true}, want: http.StatusOK},
		{name: "invalid input", res: failed(classify.CategoryAuth, classify.TypeInvalidInput), want: http.StatusBadRequest},
		{name: "authentication", res: failed(classify.CategoryAuth, classify.TypeAuthentication), want: http.StatusUnauthorized},
		{name: "session", res: failed(classify.CategoryAuth, classify.TypeSession), want: http.StatusUnauthorized},
		{name: "access denied", res: failed(classify.CategoryPermission, classify.TypeAccessDenied), want: http.StatusForbidden},
		{name: "missing", res: failed(classify.CategoryNotFound, classify.TypeResourceMissing), want: http.StatusNotFound},
		{name: "duplicate", res: failed(classify.CategoryConflict, classify.TypeDuplicate), want: http.StatusConflict},
		{name: "quota", res: failed(classify.CategoryQuota, classify.TypeExceeded), want: http.StatusTooManyRequests},
		{name: "upstream rate limit", res: failed(classify.CategoryAuth, classify.TypeRateLimited), want: http.StatusTooManyRequests},
		{name: "unavailable", res: failed(classify.CategoryNetwork, classify.TypeServiceUnavailable), want: http.StatusServiceUnavailable},
		{name: "connection", res: failed(classify.CategoryNetwork, classify.TypeConnection), want: http.StatusServiceUnavailable},
		{name: "timeout", res: failed(classify.CategoryNetwork, classify.TypeTimeout), want: http.StatusGatewayTimeout},
		{name: "generic", res: failed(classify.CategoryUnknown, classify.TypeGeneric), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusCode(tt.res))
		})
	}
}

func TestInvoke_RateLimitedSetsRetryAfter(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	inv.result = failed(classify.CategoryQuota, classify.TypeExceeded)
	inv.result.Error.RetryAfterMs = 1200
	srv := New(config.ServerConfig{}, inv)

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/tenants/acme/operations/getUser", `{}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	var res gateway.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(1200), res.Error.RetryAfterMs)
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	inv.panics = true
	srv := New(config.ServerConfig{}, inv)

	rec := do(t, srv.Handler(), http.MethodPost, "/v1/tenants/acme/operations/getUser", `{}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var res gateway.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Equal(t, classify.CategoryUnknown, res.Error.Category)
	assert.Equal(t, classify.TypeGeneric, res.Error.Type)
}

func TestOperations(t *testing.T) {
	t.Parallel()

	srv := New(config.ServerConfig{}, newFakeInvoker(t))

	rec := do(t, srv.Handler(), http.MethodGet, "/v1/operations", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"operations":[
		{"name":"createUser","category":"authOps","cacheable":false},
		{"name":"getUser","category":"authOps","cacheable":true,"ttlSeconds":60}
	]}`, rec.Body.String())
}

func TestMetricsSnapshot(t *testing.T) {
	t.Parallel()

	inv := newFakeInvoker(t)
	inv.metrics.RecordInvocation("getUser", 20*time.Millisecond, metrics.OutcomeSuccess)
	inv.metrics.RecordCacheHit()
	inv.metrics.RecordCacheMiss()
	inv.metrics.RecordRateLimitHit("authOps")
	srv := New(config.ServerConfig{}, inv)

	rec := do(t, srv.Handler(), http.MethodGet, "/v1/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		CacheHits        int64            `json:"cacheHits"`
		CacheMisses      int64            `json:"cacheMisses"`
		CacheHitRate     float64          `json:"cacheHitRate"`
		TotalInvocations int64            `json:"totalInvocations"`
		RateLimitHits    map[string]int64 `json:"rateLimitHits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1), body.CacheHits)
	assert.Equal(t, int64(1), body.CacheMisses)
	assert.InDelta(t, 50.0, body.CacheHitRate, 0.001)
	assert.Equal(t, int64(1), body.TotalInvocations)
	assert.Equal(t, int64(1), body.RateLimitHits["authOps"])
}

func TestPrometheusEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	inv := newFakeInvoker(t)
	inv.metrics = metrics.NewRegistry(metrics.WithPrometheus(reg))
	inv.metrics.RecordCacheHit()

	srv := New(config.ServerConfig{}, inv, WithPrometheus("/metrics", reg))
	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cache")

	bare := New(config.ServerConfig{}, inv)
	assert.Equal(t, http.StatusNotFound, do(t, bare.Handler(), http.MethodGet, "/metrics", "").Code)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	checker := health.NewChecker("1.0.0")
	failing := false
	checker.Register("redis", func(context.Context) error {
		if failing {
			return errors.New("connection refused")
		}
		return nil
	}, true)
	srv := New(config.ServerConfig{}, newFakeInvoker(t), WithHealth(checker))

	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.0.0"`)

	rec = do(t, srv.Handler(), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	failing = true
	rec = do(t, srv.Handler(), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestServeAndShutdown(t *testing.T) {
	t.Parallel()

	srv := New(config.ServerConfig{ShutdownTimeout: config.Duration(time.Second)}, newFakeInvoker(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	require.Eventually(t, srv.IsRunning, time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-errCh)
	assert.Equal(t, http.StatusServiceUnavailable,
		do(t, srv.Handler(), http.MethodGet, "/readyz", "").Code)
	assert.False(t, srv.IsRunning())
	assert.NoError(t, srv.Shutdown(context.Background()))
}
