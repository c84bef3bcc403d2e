package backend

import (
	"net/http"
	"time"
)

// TenantHandle is the set of clients bound to one tenant.
type TenantHandle struct {
	TenantID string

	// BaseURL is the tenant's admin API root, without a trailing slash.
	BaseURL    string
	HTTPClient *http.Client

	// Storage is nil when object storage is disabled.
	Storage ObjectStore

	// Breaker is nil when circuit breaking is disabled.
	Breaker *Breaker

	CreatedAt time.Time
}

// Close releases idle connections held by the handle.
func (h *TenantHandle) Close() error {
	if h == nil || h.HTTPClient == nil {
		return nil
	}
	h.HTTPClient.CloseIdleConnections()
	return nil
}
