// Package backend owns the per-tenant clients used to reach the admin
// platform.
//
// A Pool hands out one TenantHandle per tenant id. The handle is built on
// first use by a Factory and reused until it is removed or the pool is
// closed. Concurrent first callers share a single construction.
//
// The default factory gives every tenant:
//
//   - an HTTP client on its own pooled transport, addressed at the tenant
//     base URL
//   - a circuit breaker around backend calls
//   - an S3-compatible object store client bound to the tenant bucket, when
//     storage is enabled
//
// Example:
//
//	factory, err := backend.NewFactory(ctx, cfg.Backend, cfg.CircuitBreaker, cfg.Storage,
//	    backend.WithLogger(logger))
//	pool := backend.NewPool(factory, backend.WithLogger(logger))
//	defer pool.Close()
//
//	handle, err := pool.Get(ctx, "acme")
package backend
