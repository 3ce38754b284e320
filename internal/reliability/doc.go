// Package reliability provides the failure-handling primitives used by the
// built-in interceptors.
//
//   - Circuit Breaker: stops running a chain that keeps failing
//   - Retry Policies: exponential backoff and fixed delay, used to retry
//     terminal handlers
//
// Example usage:
//
//	cb := NewCircuitBreaker(
//	    WithName("orders"),
//	    WithFailureThreshold(5),
//	    WithTimeout(30 * time.Second),
//	)
//
//	err := cb.Execute(ctx, func() error {
//	    return next()
//	})
package reliability
