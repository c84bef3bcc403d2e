// Package gateway runs administrative operations for many tenants behind
// one entry point.
//
// Gateway.Invoke applies, in order: a response cache lookup for cacheable
// operations, rate limit admission by operation category, retried
// execution against the tenant's pooled clients, and cache population on
// success. Every call returns a Result envelope; failures carry their
// classification and never escape as errors or panics.
//
//	gw, err := gateway.New(gateway.Deps{
//	    Catalog: catalog.MustDefault(),
//	    Pool:    pool,
//	    Limiter: limiter,
//	    Cache:   responseCache,
//	    Metrics: registry,
//	}, gateway.WithLogger(logger))
//
//	res := gw.Invoke(ctx, "listUsers", "acme", map[string]any{"maxResults": 10}, gateway.InvokeOptions{})
package gateway
