package backend

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/opgw/internal/config"
)

// newTransport builds a pooled transport from the backend connection limits.
func newTransport(cfg config.BackendConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout.Duration(),
		ResponseHeaderTimeout: cfg.RequestTimeout.Duration(),
		ExpectContinueTimeout: time.Second,
	}
}

// instrumentedTransport records admin API traffic and keeps idle
// connection cleanup reachable through http.Client.CloseIdleConnections.
type instrumentedTransport struct {
	base *http.Transport
	next http.RoundTripper
}

func (t *instrumentedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(r)
}

func (t *instrumentedTransport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
}

func instrument(base *http.Transport, m *Metrics) http.RoundTripper {
	if m == nil {
		return base
	}
	next := promhttp.InstrumentRoundTripperInFlight(m.upstreamInFlight,
		promhttp.InstrumentRoundTripperCounter(m.upstreamRequests,
			promhttp.InstrumentRoundTripperDuration(m.upstreamDuration, base),
		),
	)
	return &instrumentedTransport{base: base, next: next}
}

// NewHTTPClient returns a client on its own pooled transport. The request
// timeout bounds a single call; the invocation deadline arrives through the
// request context.
func NewHTTPClient(cfg config.BackendConfig) *http.Client {
	return newHTTPClient(cfg, nil)
}

func newHTTPClient(cfg config.BackendConfig, m *Metrics) *http.Client {
	return &http.Client{
		Transport: instrument(newTransport(cfg), m),
		Timeout:   cfg.RequestTimeout.Duration(),
	}
}
