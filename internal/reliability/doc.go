// Package reliability guards outbound posts to the host channel.
//
// Two patterns are provided:
//   - Retry policies (exponential backoff, fixed delay) for transient post failures
//   - A circuit breaker that stops hammering a host channel that keeps failing
//
// Errors wrapped with Permanent are never retried. Both patterns are safe for
// concurrent use.
//
//	cb := reliability.NewCircuitBreaker(reliability.WithFailureThreshold(5))
//	err := cb.Execute(ctx, func() error {
//	    return reliability.Retry(ctx, reliability.NewFixedDelay(20*time.Millisecond, 2), post)
//	})
package reliability
