// Package retry provides bounded exponential-backoff retry.
//
// Do is the general helper used for infrastructure calls such as Redis.
// Executor is the operation runner: it consults the error classifier after
// every failed attempt, stops at once on non-retryable classifications, and
// records every attempt in the metrics registry.
//
// # Schedule
//
// The wait after attempt n (0-based) is min(BaseDelay*2^n, MaxDelay). With
// the defaults (3 retries, 1s base, 30s cap) a persistently failing
// operation is attempted 4 times with waits of 1s, 2s and 4s. A positive
// JitterFactor adds up to JitterFactor*wait on top, still capped.
//
// # Usage
//
//	exec := retry.NewExecutor(retry.DefaultConfig(),
//	    retry.WithRecorder(registry),
//	    retry.WithLogger(logger))
//	value, err := exec.Run(ctx, "listUsers", func(ctx context.Context) (any, error) {
//	    return client.ListUsers(ctx)
//	})
package retry
