package interceptors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Next continues the chain: it runs the following interceptor, or the terminal
// handler when the chain is exhausted, and returns the error that escaped it.
// It may be called at most once per interceptor invocation.
type Next func() error

// Interceptor is a unit of cross-cutting logic in a chain
type Interceptor interface {
	// Intercept acts on the exchange. Calling next continues the chain; returning
	// without calling it halts the chain.
	Intercept(c *Context, next Next) error
}

// InterceptorFunc is a function adapter for Interceptor
type InterceptorFunc func(c *Context, next Next) error

// Intercept implements Interceptor
func (f InterceptorFunc) Intercept(c *Context, next Next) error {
	return f(c, next)
}

// Handler is the terminal step of a chain
type Handler interface {
	Handle(c *Context) error
}

// HandlerFunc is a function adapter for Handler
type HandlerFunc func(c *Context) error

// Handle implements Handler
func (f HandlerFunc) Handle(c *Context) error {
	return f(c)
}

type namedInterceptor struct {
	Interceptor
	name string
}

func (n *namedInterceptor) Name() string {
	return n.name
}

// Named attaches a registration name to an interceptor
func Named(name string, interceptor Interceptor) Interceptor {
	return &namedInterceptor{Interceptor: interceptor, name: name}
}

// Func creates a named interceptor from a function
func Func(name string, fn func(c *Context, next Next) error) Interceptor {
	return Named(name, InterceptorFunc(fn))
}

// NameOf returns the diagnostic name of an interceptor: its Name() when it has
// one, otherwise its Go type
func NameOf(interceptor Interceptor) string {
	if n, ok := interceptor.(interface{ Name() string }); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", interceptor)
}

// Built-in interceptors

// LoggingInterceptor logs exchange processing
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoggingInterceptor{logger: logger}
}

// Intercept implements Interceptor
func (i *LoggingInterceptor) Intercept(c *Context, next Next) error {
	start := time.Now()

	i.logger.Info("processing exchange",
		"exchangeId", c.ID(),
		"chain", c.Chain(),
	)

	err := next()
	duration := time.Since(start)

	if err != nil {
		i.logger.Error("exchange processing failed",
			"exchangeId", c.ID(),
			"chain", c.Chain(),
			"duration", duration,
			"error", err,
		)
	} else {
		i.logger.Info("exchange processed",
			"exchangeId", c.ID(),
			"chain", c.Chain(),
			"duration", duration,
		)
	}

	return err
}

// Name implements Interceptor
func (i *LoggingInterceptor) Name() string {
	return "LoggingInterceptor"
}

// MetricsInterceptor collects metrics about exchange processing
type MetricsInterceptor struct {
	collector MetricsCollector
}

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	IncrementInvocationCount(chain string)
	RecordProcessingTime(chain string, duration time.Duration)
	IncrementErrorCount(chain string, errorType string)
}

// NewMetricsInterceptor creates a new metrics interceptor
func NewMetricsInterceptor(collector MetricsCollector) *MetricsInterceptor {
	return &MetricsInterceptor{collector: collector}
}

// Intercept implements Interceptor
func (i *MetricsInterceptor) Intercept(c *Context, next Next) error {
	start := time.Now()
	chain := c.Chain()

	i.collector.IncrementInvocationCount(chain)

	err := next()

	i.collector.RecordProcessingTime(chain, time.Since(start))
	if err != nil {
		i.collector.IncrementErrorCount(chain, ErrorType(err))
	}

	return err
}

// Name implements Interceptor
func (i *MetricsInterceptor) Name() string {
	return "MetricsInterceptor"
}

// ErrorType classifies an error for metrics labels
func ErrorType(err error) string {
	var ue *UnrecoveredInterceptorError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReentrantInvocation):
		return "reentrant_invocation"
	case errors.As(err, &ue) && ue.IsPanic():
		return "panic"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "processing_error"
	}
}

// ValidationInterceptor validates exchanges before processing
type ValidationInterceptor struct {
	validator Validator
}

// Validator defines the interface for exchange validation
type Validator interface {
	Validate(c *Context) error
}

// ValidatorFunc is a function adapter for Validator
type ValidatorFunc func(c *Context) error

// Validate implements Validator
func (f ValidatorFunc) Validate(c *Context) error {
	return f(c)
}

// NewValidationInterceptor creates a new validation interceptor
func NewValidationInterceptor(validator Validator) *ValidationInterceptor {
	return &ValidationInterceptor{validator: validator}
}

// Intercept implements Interceptor
func (i *ValidationInterceptor) Intercept(c *Context, next Next) error {
	if err := i.validator.Validate(c); err != nil {
		return fmt.Errorf("exchange validation failed: %w", err)
	}

	return next()
}

// Name implements Interceptor
func (i *ValidationInterceptor) Name() string {
	return "ValidationInterceptor"
}

// AuthenticationInterceptor halts exchanges that carry no principal
type AuthenticationInterceptor struct {
	authenticator Authenticator
}

// Authenticator resolves the principal of an exchange. ok is false when the
// exchange is not authenticated; err is reserved for failures of the
// authenticator itself.
type Authenticator interface {
	Authenticate(c *Context) (principal interface{}, ok bool, err error)
}

// AuthenticatorFunc is a function adapter for Authenticator
type AuthenticatorFunc func(c *Context) (interface{}, bool, error)

// Authenticate implements Authenticator
func (f AuthenticatorFunc) Authenticate(c *Context) (interface{}, bool, error) {
	return f(c)
}

// AttributeAuthenticator authenticates exchanges whose attribute key holds a
// non-empty string
func AttributeAuthenticator(key string) Authenticator {
	return AuthenticatorFunc(func(c *Context) (interface{}, bool, error) {
		user, ok := c.GetString(key)
		if !ok || user == "" {
			return nil, false, nil
		}
		return user, true, nil
	})
}

// NewAuthenticationInterceptor creates a new authentication interceptor
func NewAuthenticationInterceptor(authenticator Authenticator) *AuthenticationInterceptor {
	return &AuthenticationInterceptor{authenticator: authenticator}
}

// Intercept implements Interceptor
func (i *AuthenticationInterceptor) Intercept(c *Context, next Next) error {
	principal, ok, err := i.authenticator.Authenticate(c)
	if err != nil {
		return fmt.Errorf("exchange authentication failed: %w", err)
	}

	if !ok {
		c.SetResult(&ShortCircuitResult{
			Reason:      "unauthenticated",
			Interceptor: i.Name(),
		})
		return nil
	}

	c.Set(UserKey, principal)
	return next()
}

// Name implements Interceptor
func (i *AuthenticationInterceptor) Name() string {
	return "AuthenticationInterceptor"
}

// DeadlineInterceptor bounds the remainder of the chain with a deadline.
// Downstream steps observe it through Context.Context(); nothing is preempted.
type DeadlineInterceptor struct {
	timeout time.Duration
}

// NewDeadlineInterceptor creates a new deadline interceptor
func NewDeadlineInterceptor(timeout time.Duration) *DeadlineInterceptor {
	return &DeadlineInterceptor{timeout: timeout}
}

// Intercept implements Interceptor
func (i *DeadlineInterceptor) Intercept(c *Context, next Next) error {
	parent := c.Context()
	deadlineCtx, cancel := context.WithTimeout(parent, i.timeout)
	defer cancel()

	c.WithContext(deadlineCtx)
	defer c.WithContext(parent)

	err := next()
	if err == nil && errors.Is(deadlineCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("exchange %s exceeded deadline of %v: %w", c.ID(), i.timeout, context.DeadlineExceeded)
	}

	return err
}

// Name implements Interceptor
func (i *DeadlineInterceptor) Name() string {
	return "DeadlineInterceptor"
}

// ErrorHandlingInterceptor lets an ErrorHandler transform or absorb failures
// of the remainder of the chain
type ErrorHandlingInterceptor struct {
	errorHandler ErrorHandler
	logger       *slog.Logger
}

// ErrorHandler decides what a downstream failure becomes. Returning nil
// absorbs it.
type ErrorHandler interface {
	HandleError(c *Context, err error) error
}

// ErrorHandlerFunc is a function adapter for ErrorHandler
type ErrorHandlerFunc func(c *Context, err error) error

// HandleError implements ErrorHandler
func (f ErrorHandlerFunc) HandleError(c *Context, err error) error {
	return f(c, err)
}

// NewErrorHandlingInterceptor creates a new error handling interceptor
func NewErrorHandlingInterceptor(errorHandler ErrorHandler, logger *slog.Logger) *ErrorHandlingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &ErrorHandlingInterceptor{
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// Intercept implements Interceptor
func (i *ErrorHandlingInterceptor) Intercept(c *Context, next Next) error {
	err := next()
	if err != nil {
		i.logger.Error("exchange processing error",
			"exchangeId", c.ID(),
			"chain", c.Chain(),
			"error", err,
		)

		return i.errorHandler.HandleError(c, err)
	}

	return nil
}

// Name implements Interceptor
func (i *ErrorHandlingInterceptor) Name() string {
	return "ErrorHandlingInterceptor"
}

// CircuitBreakerInterceptor provides circuit breaker functionality
type CircuitBreakerInterceptor struct {
	circuitBreaker CircuitBreaker
}

// CircuitBreaker defines the interface for circuit breaker functionality
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
}

// NewCircuitBreakerInterceptor creates a new circuit breaker interceptor
func NewCircuitBreakerInterceptor(circuitBreaker CircuitBreaker) *CircuitBreakerInterceptor {
	return &CircuitBreakerInterceptor{circuitBreaker: circuitBreaker}
}

// Intercept implements Interceptor
func (i *CircuitBreakerInterceptor) Intercept(c *Context, next Next) error {
	return i.circuitBreaker.Execute(c.Context(), func() error {
		return next()
	})
}

// Name implements Interceptor
func (i *CircuitBreakerInterceptor) Name() string {
	return "CircuitBreakerInterceptor"
}

// Chain builder

// Builder builds an immutable Chain
type Builder struct {
	interceptors []Interceptor
	logger       *slog.Logger
}

// NewBuilder creates a new builder
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{logger: logger}
}

// WithLogging adds logging interceptor
func (b *Builder) WithLogging() *Builder {
	return b.WithCustom(NewLoggingInterceptor(b.logger))
}

// WithMetrics adds metrics interceptor
func (b *Builder) WithMetrics(collector MetricsCollector) *Builder {
	return b.WithCustom(NewMetricsInterceptor(collector))
}

// WithTracing adds trace interceptor
func (b *Builder) WithTracing() *Builder {
	return b.WithCustom(NewTraceInterceptor())
}

// WithValidation adds validation interceptor
func (b *Builder) WithValidation(validator Validator) *Builder {
	return b.WithCustom(NewValidationInterceptor(validator))
}

// WithAuthentication adds authentication interceptor
func (b *Builder) WithAuthentication(authenticator Authenticator) *Builder {
	return b.WithCustom(NewAuthenticationInterceptor(authenticator))
}

// WithThrottle adds throttle interceptor
func (b *Builder) WithThrottle(limiter Limiter) *Builder {
	return b.WithCustom(NewThrottleInterceptor(limiter))
}

// WithDeadline adds deadline interceptor
func (b *Builder) WithDeadline(timeout time.Duration) *Builder {
	return b.WithCustom(NewDeadlineInterceptor(timeout))
}

// WithErrorHandling adds error handling interceptor
func (b *Builder) WithErrorHandling(errorHandler ErrorHandler) *Builder {
	return b.WithCustom(NewErrorHandlingInterceptor(errorHandler, b.logger))
}

// WithCircuitBreaker adds circuit breaker interceptor
func (b *Builder) WithCircuitBreaker(circuitBreaker CircuitBreaker) *Builder {
	return b.WithCustom(NewCircuitBreakerInterceptor(circuitBreaker))
}

// WithCustom adds a custom interceptor
func (b *Builder) WithCustom(interceptor Interceptor) *Builder {
	b.interceptors = append(b.interceptors, interceptor)
	return b
}

// Use adds a named function interceptor
func (b *Builder) Use(name string, fn func(c *Context, next Next) error) *Builder {
	return b.WithCustom(Func(name, fn))
}

// Interceptors returns a copy of the interceptors added so far
func (b *Builder) Interceptors() []Interceptor {
	out := make([]Interceptor, len(b.interceptors))
	copy(out, b.interceptors)
	return out
}

// Build returns the built chain
func (b *Builder) Build(terminal Handler) *Chain {
	return NewChain(terminal, b.interceptors...)
}
