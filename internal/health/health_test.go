package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("down") }

func TestHealth(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := NewChecker("1.2.3", WithClock(clock))

	now = now.Add(90 * time.Second)
	h := c.Health()

	assert.Equal(t, StatusHealthy, h.Status)
	assert.Equal(t, "1.2.3", h.Version)
	assert.Equal(t, "1m30s", h.Uptime)
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		checks map[string]struct {
			fn       CheckFunc
			critical bool
		}
		want Status
	}{
		{name: "no checks", want: StatusHealthy},
		{
			name: "all healthy",
			checks: map[string]struct {
				fn       CheckFunc
				critical bool
			}{"redis": {ok, true}, "admin": {ok, false}},
			want: StatusHealthy,
		},
		{
			name: "non-critical failing",
			checks: map[string]struct {
				fn       CheckFunc
				critical bool
			}{"redis": {ok, true}, "admin": {failing, false}},
			want: StatusDegraded,
		},
		{
			name: "critical failing",
			checks: map[string]struct {
				fn       CheckFunc
				critical bool
			}{"redis": {failing, true}, "admin": {failing, false}},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewChecker("test")
			for name, chk := range tt.checks {
				c.Register(name, chk.fn, chk.critical)
			}

			res := c.Readiness(context.Background())

			assert.Equal(t, tt.want, res.Status)
			assert.Len(t, res.Checks, len(tt.checks))
			assert.Equal(t, tt.want != StatusUnhealthy, res.Ready())
		})
	}
}

func TestReadiness_CheckMessageAndTimeout(t *testing.T) {
	t.Parallel()

	c := NewChecker("test", WithTimeout(20*time.Millisecond))
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, true)
	c.Register("broken", failing, false)

	res := c.Readiness(context.Background())

	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "down", res.Checks["broken"].Message)
	assert.Contains(t, res.Checks["slow"].Message, "deadline exceeded")
	assert.Equal(t, []string{"broken", "slow"}, c.Names())
}

func TestReadiness_Draining(t *testing.T) {
	t.Parallel()

	c := NewChecker("test")
	c.Register("redis", ok, true)

	c.SetDraining(true)
	res := c.Readiness(context.Background())
	assert.Equal(t, StatusDraining, res.Status)
	assert.False(t, res.Ready())
	assert.Equal(t, StatusHealthy, c.Health().Status)

	c.SetDraining(false)
	assert.True(t, c.Readiness(context.Background()).Ready())
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := NewChecker("test", WithMetrics(m))
	c.Register("redis", ok, true)
	c.Register("admin", failing, false)

	c.Readiness(context.Background())

	assert.InDelta(t, 1, testutil.ToFloat64(m.checkStatus.WithLabelValues("redis")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.checkStatus.WithLabelValues("admin")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.checksTotal.WithLabelValues("admin", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ready), 0)
}

func TestRedisCheck(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := RedisCheck(client)
	require.NoError(t, check(context.Background()))

	mr.SetError("LOADING")
	assert.Error(t, check(context.Background()))
}

func TestHTTPCheck(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	t.Cleanup(srv.Close)

	check := HTTPCheck(srv.Client(), srv.URL)
	require.NoError(t, check(context.Background()))

	status.Store(http.StatusNotFound)
	require.NoError(t, check(context.Background()))

	status.Store(http.StatusBadGateway)
	assert.Error(t, check(context.Background()))
}
