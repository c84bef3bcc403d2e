// Package catalog is the static table of gateway operations.
//
// Each Entry names an operation, the rate limit category it draws from,
// whether its results may be cached and for how long, and the Handler that
// performs it against a tenant's clients. New validates a table once;
// Default returns the standard operations of the admin platform:
//
//   - authOps: the user directory, served by the tenant admin API
//   - dataOps: the document store, served by the tenant admin API
//   - storageOps: blob storage, served by the tenant object store
//   - hostingOps: static hosting, served by the tenant admin API
//
// Dispatcher executes operations by table lookup.
package catalog
