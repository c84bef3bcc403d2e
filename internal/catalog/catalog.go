package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vyrodovalexey/opgw/internal/backend"
	"github.com/vyrodovalexey/opgw/internal/classify"
)

// Rate limit categories.
const (
	CategoryGlobal  = "global"
	CategoryAuth    = "authOps"
	CategoryStorage = "storageOps"
	CategoryData    = "dataOps"
	CategoryHosting = "hostingOps"
)

var knownCategories = map[string]bool{
	CategoryGlobal:  true,
	CategoryAuth:    true,
	CategoryStorage: true,
	CategoryData:    true,
	CategoryHosting: true,
}

// Categories returns the known rate limit categories in order.
func Categories() []string {
	out := make([]string, 0, len(knownCategories))
	for c := range knownCategories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ErrUnknownOperation is returned for names missing from the catalog.
var ErrUnknownOperation = classify.NewError("invalid-argument", "unknown operation")

// ErrInvalidCatalog is returned by New for a malformed table.
var ErrInvalidCatalog = errors.New("invalid operation catalog")

// Handler performs one operation for a tenant.
type Handler func(ctx context.Context, h *backend.TenantHandle, args map[string]any) (any, error)

// Entry describes one operation.
type Entry struct {
	Name     string
	Category string

	// Cacheable marks read-only operations whose results may be reused.
	Cacheable bool

	// TTL overrides the cache default for this operation; zero keeps it.
	TTL time.Duration

	Handler Handler
}

// Catalog is an immutable, validated operation table.
type Catalog struct {
	entries map[string]Entry
	names   []string
}

// New validates entries and builds a catalog. Names must be non-empty and
// unique, categories known, TTLs non-negative and handlers set. Mutating
// operations carry no TTL.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}

	var errs []error
	for i, e := range entries {
		if err := validateEntry(e); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%q): %w", i, e.Name, err))
			continue
		}
		if _, dup := c.entries[e.Name]; dup {
			errs = append(errs, fmt.Errorf("entry %d: duplicate operation %q", i, e.Name))
			continue
		}
		c.entries[e.Name] = e
		c.names = append(c.names, e.Name)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, errors.Join(errs...))
	}

	sort.Strings(c.names)
	return c, nil
}

func validateEntry(e Entry) error {
	switch {
	case e.Name == "":
		return errors.New("name is required")
	case !knownCategories[e.Category]:
		return fmt.Errorf("unknown category %q", e.Category)
	case e.TTL < 0:
		return errors.New("ttl must not be negative")
	case !e.Cacheable && e.TTL != 0:
		return errors.New("ttl set on a non-cacheable operation")
	case e.Handler == nil:
		return errors.New("handler is required")
	}
	return nil
}

// Lookup returns the entry of name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Names returns the operation names in order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Len returns the number of operations.
func (c *Catalog) Len() int {
	return len(c.entries)
}
