package interceptors

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/glimte/yunas-go/internal/reliability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock interfaces for testing
type mockMetricsCollector struct {
	mock.Mock
}

func (m *mockMetricsCollector) IncrementInvocationCount(chain string) {
	m.Called(chain)
}

func (m *mockMetricsCollector) RecordProcessingTime(chain string, duration time.Duration) {
	m.Called(chain, duration)
}

func (m *mockMetricsCollector) IncrementErrorCount(chain string, errorType string) {
	m.Called(chain, errorType)
}

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) Validate(c *Context) error {
	args := m.Called(c)
	return args.Error(0)
}

type mockCircuitBreaker struct {
	mock.Mock
}

func (m *mockCircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	args := m.Called(ctx, fn)
	if args.Bool(1) {
		return fn()
	}
	return args.Error(0)
}

func chainContext(chain string) *Context {
	c := NewContext(context.Background(), "exchange-1")
	c.SetChain(chain)
	return c
}

func noopHandler() Handler {
	return HandlerFunc(func(c *Context) error { return nil })
}

func TestAuthenticationScenario(t *testing.T) {
	build := func(rec *recorder) *Chain {
		return NewChain(
			HandlerFunc(func(c *Context) error {
				rec.add("handler")
				c.SetResult("ok")
				return nil
			}),
			Func("LogPre", func(c *Context, next Next) error {
				rec.add("LogPre:before")
				err := next()
				rec.add("LogPre:after")
				return err
			}),
			Named("AuthCheck", NewAuthenticationInterceptor(AttributeAuthenticator(UserKey))),
			Func("LogPost", func(c *Context, next Next) error {
				rec.add("LogPost")
				return next()
			}),
		)
	}

	t.Run("anonymous exchange halts at the auth check", func(t *testing.T) {
		rec := &recorder{}
		c := newTestContext()

		outcome, err := build(rec).Invoke(c)

		require.NoError(t, err)
		assert.Equal(t, StateHalted, outcome.State)
		assert.Equal(t, "AuthCheck", outcome.Interceptor)
		assert.Equal(t, 1, outcome.Position)
		assert.Equal(t, []string{"LogPre:before", "LogPre:after"}, rec.entries())

		result, ok := GetShortCircuitResult(c)
		require.True(t, ok)
		assert.Equal(t, "unauthenticated", result.Reason)
	})

	t.Run("authenticated exchange completes", func(t *testing.T) {
		rec := &recorder{}
		c := newTestContext()
		c.Set(UserKey, "alice")

		outcome, err := build(rec).Invoke(c)

		require.NoError(t, err)
		assert.Equal(t, StateCompleted, outcome.State)
		assert.Equal(t, []string{"LogPre:before", "LogPost", "handler", "LogPre:after"}, rec.entries())
		assert.Equal(t, "ok", c.Result())
		user, _ := c.GetString(UserKey)
		assert.Equal(t, "alice", user)
	})

	t.Run("authenticator failure fails the exchange", func(t *testing.T) {
		cause := errors.New("directory unavailable")
		chain := NewChain(noopHandler(), NewAuthenticationInterceptor(AuthenticatorFunc(
			func(c *Context) (interface{}, bool, error) { return nil, false, cause },
		)))

		outcome, err := chain.Invoke(newTestContext())

		assert.ErrorIs(t, err, cause)
		assert.Equal(t, StateFailed, outcome.State)
		assert.Equal(t, "AuthenticationInterceptor", outcome.Interceptor)
	})
}

func TestLoggingInterceptor(t *testing.T) {
	t.Run("logs start and completion", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		chain := NewChain(noopHandler(), NewLoggingInterceptor(logger))

		_, err := chain.Invoke(chainContext("orders"))

		require.NoError(t, err)
		assert.Contains(t, buf.String(), "processing exchange")
		assert.Contains(t, buf.String(), "exchange processed")
		assert.Contains(t, buf.String(), `"chain":"orders"`)
	})

	t.Run("logs failures and passes them on", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		cause := errors.New("boom")
		chain := NewChain(HandlerFunc(func(c *Context) error { return cause }), NewLoggingInterceptor(logger))

		_, err := chain.Invoke(chainContext("orders"))

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, buf.String(), "exchange processing failed")
	})

	t.Run("defaults to slog default logger", func(t *testing.T) {
		interceptor := NewLoggingInterceptor(nil)
		assert.Equal(t, slog.Default(), interceptor.logger)
		assert.Equal(t, "LoggingInterceptor", interceptor.Name())
	})
}

func TestMetricsInterceptor(t *testing.T) {
	t.Run("records invocation and duration", func(t *testing.T) {
		collector := &mockMetricsCollector{}
		collector.On("IncrementInvocationCount", "orders").Return()
		collector.On("RecordProcessingTime", "orders", mock.AnythingOfType("time.Duration")).Return()

		chain := NewChain(noopHandler(), NewMetricsInterceptor(collector))
		_, err := chain.Invoke(chainContext("orders"))

		require.NoError(t, err)
		collector.AssertExpectations(t)
		collector.AssertNotCalled(t, "IncrementErrorCount", mock.Anything, mock.Anything)
	})

	t.Run("records failures by type", func(t *testing.T) {
		collector := &mockMetricsCollector{}
		collector.On("IncrementInvocationCount", "orders").Return()
		collector.On("RecordProcessingTime", "orders", mock.AnythingOfType("time.Duration")).Return()
		collector.On("IncrementErrorCount", "orders", "panic").Return()

		chain := NewChain(HandlerFunc(func(c *Context) error { panic("boom") }), NewMetricsInterceptor(collector))
		_, err := chain.Invoke(chainContext("orders"))

		require.Error(t, err)
		collector.AssertExpectations(t)
	})
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "", ErrorType(nil))
	assert.Equal(t, "reentrant_invocation", ErrorType(&ReentrantInvocationError{Interceptor: "a"}))
	assert.Equal(t, "panic", ErrorType(&UnrecoveredInterceptorError{Panic: "boom", Err: errors.New("panic: boom")}))
	assert.Equal(t, "deadline_exceeded", ErrorType(&UnrecoveredInterceptorError{Err: context.DeadlineExceeded}))
	assert.Equal(t, "cancelled", ErrorType(context.Canceled))
	assert.Equal(t, "processing_error", ErrorType(errors.New("boom")))
}

func TestValidationInterceptor(t *testing.T) {
	t.Run("continues valid exchanges", func(t *testing.T) {
		validator := &mockValidator{}
		validator.On("Validate", mock.Anything).Return(nil)

		outcome, err := NewChain(noopHandler(), NewValidationInterceptor(validator)).Invoke(newTestContext())

		require.NoError(t, err)
		assert.Equal(t, StateCompleted, outcome.State)
		validator.AssertExpectations(t)
	})

	t.Run("fails invalid exchanges", func(t *testing.T) {
		cause := errors.New("missing order id")
		validator := &mockValidator{}
		validator.On("Validate", mock.Anything).Return(cause)
		handled := false

		outcome, err := NewChain(HandlerFunc(func(c *Context) error {
			handled = true
			return nil
		}), NewValidationInterceptor(validator)).Invoke(newTestContext())

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "exchange validation failed")
		assert.Equal(t, StateFailed, outcome.State)
		assert.False(t, handled)
	})
}

func TestDeadlineInterceptor(t *testing.T) {
	t.Run("downstream observes the deadline", func(t *testing.T) {
		chain := NewChain(HandlerFunc(func(c *Context) error {
			<-c.Context().Done()
			return c.Context().Err()
		}), NewDeadlineInterceptor(10*time.Millisecond))

		c := newTestContext()
		_, err := chain.Invoke(c)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		_, hasDeadline := c.Context().Deadline()
		assert.False(t, hasDeadline)
	})

	t.Run("late success is reported as deadline exceeded", func(t *testing.T) {
		chain := NewChain(HandlerFunc(func(c *Context) error {
			time.Sleep(30 * time.Millisecond)
			return nil
		}), NewDeadlineInterceptor(5*time.Millisecond))

		outcome, err := chain.Invoke(newTestContext())

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, "DeadlineInterceptor", outcome.Interceptor)
	})

	t.Run("fast exchanges complete", func(t *testing.T) {
		outcome, err := NewChain(noopHandler(), NewDeadlineInterceptor(time.Second)).Invoke(newTestContext())

		require.NoError(t, err)
		assert.Equal(t, StateCompleted, outcome.State)
	})
}

func TestErrorHandlingInterceptor(t *testing.T) {
	t.Run("absorbs handled errors", func(t *testing.T) {
		chain := NewChain(
			HandlerFunc(func(c *Context) error { return errors.New("boom") }),
			NewErrorHandlingInterceptor(ErrorHandlerFunc(func(c *Context, err error) error {
				c.SetResult("recovered")
				return nil
			}), nil),
		)

		c := newTestContext()
		outcome, err := chain.Invoke(c)

		require.NoError(t, err)
		assert.Equal(t, StateHalted, outcome.State)
		assert.Equal(t, "ErrorHandlingInterceptor", outcome.Interceptor)
		assert.Equal(t, "recovered", c.Result())
	})

	t.Run("returns transformed errors", func(t *testing.T) {
		mapped := errors.New("mapped")
		chain := NewChain(
			HandlerFunc(func(c *Context) error { return errors.New("boom") }),
			NewErrorHandlingInterceptor(ErrorHandlerFunc(func(c *Context, err error) error {
				return mapped
			}), nil),
		)

		outcome, err := chain.Invoke(newTestContext())

		assert.ErrorIs(t, err, mapped)
		assert.Equal(t, StateFailed, outcome.State)
		assert.Equal(t, TerminalName, outcome.Interceptor)
	})
}

func TestCircuitBreakerInterceptor(t *testing.T) {
	t.Run("runs the chain through the breaker", func(t *testing.T) {
		breaker := &mockCircuitBreaker{}
		breaker.On("Execute", mock.Anything, mock.Anything).Return(nil, true)

		outcome, err := NewChain(noopHandler(), NewCircuitBreakerInterceptor(breaker)).Invoke(newTestContext())

		require.NoError(t, err)
		assert.Equal(t, StateCompleted, outcome.State)
		breaker.AssertExpectations(t)
	})

	t.Run("open breaker fails fast", func(t *testing.T) {
		breaker := reliability.NewCircuitBreaker(
			reliability.WithFailureThreshold(1),
			reliability.WithTimeout(time.Minute),
		)
		calls := 0
		chain := NewChain(HandlerFunc(func(c *Context) error {
			calls++
			return errors.New("backend down")
		}), NewCircuitBreakerInterceptor(breaker))

		_, err := chain.Invoke(newTestContext())
		require.Error(t, err)

		_, err = chain.Invoke(newTestContext())
		assert.ErrorIs(t, err, reliability.ErrCircuitOpen)
		assert.Equal(t, 1, calls)
	})
}

func TestBuilder(t *testing.T) {
	t.Run("builds interceptors in order", func(t *testing.T) {
		collector := &mockMetricsCollector{}
		collector.On("IncrementInvocationCount", mock.Anything).Return()
		collector.On("RecordProcessingTime", mock.Anything, mock.Anything).Return()

		chain := NewBuilder(nil).
			WithLogging().
			WithMetrics(collector).
			WithTracing().
			WithValidation(ValidatorFunc(func(c *Context) error { return nil })).
			WithAuthentication(AttributeAuthenticator(UserKey)).
			WithThrottle(NewUberLimiter(0)).
			WithDeadline(time.Second).
			WithErrorHandling(ErrorHandlerFunc(func(c *Context, err error) error { return err })).
			WithCircuitBreaker(reliability.NewCircuitBreaker()).
			Use("audit", func(c *Context, next Next) error { return next() }).
			Build(noopHandler())

		assert.Equal(t, []string{
			"LoggingInterceptor",
			"MetricsInterceptor",
			"TraceInterceptor",
			"ValidationInterceptor",
			"AuthenticationInterceptor",
			"ThrottleInterceptor",
			"DeadlineInterceptor",
			"ErrorHandlingInterceptor",
			"CircuitBreakerInterceptor",
			"audit",
		}, chain.Names())

		c := newTestContext()
		c.Set(UserKey, "alice")
		outcome, err := chain.Invoke(c)

		require.NoError(t, err)
		assert.Equal(t, StateCompleted, outcome.State)
	})

	t.Run("interceptors returns a copy", func(t *testing.T) {
		builder := NewBuilder(nil).WithLogging()
		list := builder.Interceptors()
		list[0] = nil

		assert.NotNil(t, builder.Interceptors()[0])
	})
}
