// Package interceptors provides the interceptor chain used to process
// exchanges.
//
// An exchange is represented by a Context, which carries an attribute bag, a
// result slot, an error slot and the context.Context used for cancellation.
// A Chain runs an ordered list of interceptors followed by a terminal handler:
//   - Each interceptor receives the Context and a Next continuation
//   - Code before next() runs in registration order, code after it in reverse
//   - Returning without calling next() halts the chain
//   - Calling next() a second time returns a *ReentrantInvocationError
//   - An error or panic that no interceptor absorbs leaves the chain as an
//     *UnrecoveredInterceptorError naming the step it came from
//
// Built-in interceptors:
//   - LoggingInterceptor: Logs exchange processing with timing information
//   - MetricsInterceptor: Reports invocations, durations and failures
//   - TraceInterceptor: Assigns a trace ID to every exchange
//   - ValidationInterceptor: Validates exchanges before processing
//   - AuthenticationInterceptor: Halts exchanges without a principal
//   - ThrottleInterceptor: Paces exchanges per chain
//   - DeadlineInterceptor: Bounds the remainder of the chain with a deadline
//   - ErrorHandlingInterceptor: Transforms or absorbs downstream failures
//   - CircuitBreakerInterceptor: Implements the circuit breaker pattern
//   - FilteringInterceptor, ShortCircuitInterceptor and friends
//
// Example usage:
//
//	chain := interceptors.NewBuilder(logger).
//		WithLogging().
//		WithAuthentication(interceptors.AttributeAuthenticator(interceptors.UserKey)).
//		WithDeadline(5 * time.Second).
//		Build(handler)
//
//	c := interceptors.NewContext(ctx, id)
//	outcome, err := chain.Invoke(c)
//
// Custom interceptors implement the Interceptor interface:
//
//	type AuditInterceptor struct{}
//
//	func (i *AuditInterceptor) Intercept(c *interceptors.Context, next interceptors.Next) error {
//		// Pre-processing logic
//		err := next()
//		// Post-processing logic
//		return err
//	}
//
//	func (i *AuditInterceptor) Name() string {
//		return "AuditInterceptor"
//	}
//
// A Chain is immutable and keeps no invocation state, so it can be shared by
// concurrent invocations. A Context belongs to a single invocation.
package interceptors
