package catalog

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/opgw/internal/backend"
)

// Dispatcher executes operations by catalog lookup.
type Dispatcher struct {
	catalog *Catalog
}

// NewDispatcher creates a dispatcher over c.
func NewDispatcher(c *Catalog) *Dispatcher {
	return &Dispatcher{catalog: c}
}

// Execute runs the handler registered for op.
func (d *Dispatcher) Execute(ctx context.Context, op string, h *backend.TenantHandle, args map[string]any) (any, error) {
	entry, ok := d.catalog.Lookup(op)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	if args == nil {
		args = map[string]any{}
	}
	return entry.Handler(ctx, h, args)
}
