package interceptors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/ratelimit"
)

func TestInterceptorFunc(t *testing.T) {
	t.Run("InterceptorFunc executes function", func(t *testing.T) {
		called := false
		interceptor := InterceptorFunc(func(c *Context, next Next) error {
			called = true
			return next()
		})

		outcome, err := NewChain(noopHandler(), interceptor).Invoke(newTestContext())

		require.NoError(t, err)
		assert.True(t, called)
		assert.Equal(t, StateCompleted, outcome.State)
	})

	t.Run("Func attaches a name", func(t *testing.T) {
		interceptor := Func("audit", func(c *Context, next Next) error { return next() })
		assert.Equal(t, "audit", NameOf(interceptor))
	})

	t.Run("Named overrides an existing name", func(t *testing.T) {
		assert.Equal(t, "access-log", NameOf(Named("access-log", NewLoggingInterceptor(nil))))
	})

	t.Run("empty name falls back to the type", func(t *testing.T) {
		assert.Equal(t, "*interceptors.namedInterceptor", NameOf(Named("", NewLoggingInterceptor(nil))))
	})
}

// limiterFunc adapts a function to Limiter
type limiterFunc func(c *Context) error

func (f limiterFunc) Wait(c *Context) error {
	return f(c)
}

func TestThrottleInterceptor(t *testing.T) {
	t.Run("continues after the limiter admits the exchange", func(t *testing.T) {
		waited := false
		interceptor := NewThrottleInterceptor(limiterFunc(func(c *Context) error {
			waited = true
			return nil
		}))

		outcome, err := NewChain(noopHandler(), interceptor).Invoke(newTestContext())

		require.NoError(t, err)
		assert.True(t, waited)
		assert.Equal(t, StateCompleted, outcome.State)
	})

	t.Run("fails when the limiter refuses", func(t *testing.T) {
		cause := errors.New("quota exhausted")
		handled := 0
		interceptor := NewThrottleInterceptor(limiterFunc(func(c *Context) error { return cause }))

		outcome, err := NewChain(countingHandler(&handled), interceptor).Invoke(chainContext("orders"))

		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "throttled exchange exchange-1 on chain orders")
		assert.Equal(t, "ThrottleInterceptor", outcome.Interceptor)
		assert.Equal(t, 0, handled)
	})
}

func TestUberLimiter(t *testing.T) {
	t.Run("paces exchanges of the same chain", func(t *testing.T) {
		limiter := NewUberLimiter(20, ratelimit.WithoutSlack)
		c := chainContext("orders")

		start := time.Now()
		for i := 0; i < 3; i++ {
			require.NoError(t, limiter.Wait(c))
		}

		// 20/s leaves 50ms between takes; the first one is free
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})

	t.Run("keeps one bucket per key", func(t *testing.T) {
		limiter := NewUberLimiter(1).WithKey(func(c *Context) string { return c.ID() })

		require.NoError(t, limiter.Wait(NewContext(context.Background(), "a")))
		require.NoError(t, limiter.Wait(NewContext(context.Background(), "b")))

		count := 0
		limiter.limiters.Range(func(key, value interface{}) bool {
			count++
			return true
		})
		assert.Equal(t, 2, count)
	})

	t.Run("zero rate is unlimited", func(t *testing.T) {
		limiter := NewUberLimiter(0)
		c := chainContext("orders")

		start := time.Now()
		for i := 0; i < 100; i++ {
			require.NoError(t, limiter.Wait(c))
		}
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("cancelled exchange is refused", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := NewUberLimiter(10).Wait(NewContext(ctx, "exchange-1"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTraceInterceptor(t *testing.T) {
	t.Run("assigns a trace ID", func(t *testing.T) {
		var fromCtx string
		chain := NewChain(HandlerFunc(func(c *Context) error {
			fromCtx = TraceIDFromContext(c.Context())
			return nil
		}), NewTraceInterceptor())

		c := newTestContext()
		_, err := chain.Invoke(c)

		require.NoError(t, err)
		traceID, ok := c.GetString(TraceIDKey)
		require.True(t, ok)
		assert.Len(t, traceID, 36)
		assert.Equal(t, traceID, fromCtx)
	})

	t.Run("keeps an existing trace ID", func(t *testing.T) {
		c := newTestContext()
		c.Set(TraceIDKey, "upstream-trace")

		_, err := NewChain(noopHandler(), NewTraceInterceptor()).Invoke(c)

		require.NoError(t, err)
		traceID, _ := c.GetString(TraceIDKey)
		assert.Equal(t, "upstream-trace", traceID)
		assert.Equal(t, "upstream-trace", TraceIDFromContext(c.Context()))
	})

	t.Run("empty without interceptor", func(t *testing.T) {
		assert.Empty(t, TraceIDFromContext(context.Background()))
	})
}
