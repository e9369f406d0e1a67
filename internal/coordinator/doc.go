// Package coordinator turns arbitrary asynchronous work into cached,
// de-duplicated, rate-limited, retried calls.
//
// Execute applies, in order: read-through cache, load shedding, a fixed
// rate-limit window per action class, single-flight de-duplication, then a
// fresh execution with per-attempt timeout and exponential-backoff retry.
// Concurrent callers for the same key share one execution and observe the
// same outcome; the in-flight slot is released before waiters are resolved,
// so a call issued right after settlement starts fresh.
//
//	co := coordinator.New(cfg, store, logger)
//
//	v, err := co.Execute(ctx, "feed:home", fetchFeed, coordinator.ExecOptions{
//	    UseCache: true,
//	    CacheTTL: 5 * time.Minute,
//	    Retry:    true,
//	})
//
// Cache write failures are absorbed: once the work succeeded, the value is
// returned even when the write-back fails. Rate-limit rejections and
// timeouts surface as typed errors the caller can branch on.
//
// ExecuteBatch runs many units through a fixed-size concurrency window and
// returns results in input order regardless of completion order.
package coordinator
