package yunas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/glimte/yunas-go/interceptors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func logPre(trail *[]string) interceptors.Interceptor {
	return interceptors.Func("LogPre", func(c *interceptors.Context, next interceptors.Next) error {
		*trail = append(*trail, "LogPre:before")
		err := next()
		*trail = append(*trail, "LogPre:after")
		return err
	})
}

func authCheck() interceptors.Interceptor {
	return interceptors.Func("AuthCheck", func(c *interceptors.Context, next interceptors.Next) error {
		if _, ok := c.GetString(interceptors.UserKey); !ok {
			return nil
		}
		return next()
	})
}

func logPost(trail *[]string) interceptors.Interceptor {
	return interceptors.Func("LogPost", func(c *interceptors.Context, next interceptors.Next) error {
		*trail = append(*trail, "LogPost")
		return next()
	})
}

func TestEngine_Register(t *testing.T) {
	t.Run("registers chains in order", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()))

		require.NoError(t, engine.Register("orders", nil))
		require.NoError(t, engine.Register("payments", nil, interceptors.NewLoggingInterceptor(nil)))

		assert.Equal(t, []string{"orders", "payments"}, engine.Chains())
		chain, ok := engine.Chain("payments")
		require.True(t, ok)
		assert.Equal(t, []string{"LoggingInterceptor"}, chain.Names())
	})

	t.Run("rejects invalid registrations", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()))

		assert.ErrorIs(t, engine.Register("", nil), ErrInvalidChainName)
		assert.ErrorIs(t, engine.RegisterChain("orders", nil), ErrNilChain)
		assert.ErrorIs(t, engine.Register("orders", nil, nil), ErrNilInterceptor)
		assert.Empty(t, engine.Chains())
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		var buf bytes.Buffer
		engine := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

		require.NoError(t, engine.Register("orders", nil))
		err := engine.Register("orders", nil)

		assert.ErrorIs(t, err, ErrDuplicateChain)
		assert.Contains(t, buf.String(), "chain already registered")
		assert.Equal(t, []string{"orders"}, engine.Chains())
	})

	t.Run("rejects registration after sealing", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()))
		engine.Seal()
		engine.Seal()

		assert.True(t, engine.Sealed())
		assert.ErrorIs(t, engine.Register("orders", nil), ErrEngineSealed)
	})

	t.Run("first invocation seals the engine", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()))
		require.NoError(t, engine.Register("orders", nil))

		_, _, err := engine.Dispatch(context.Background(), "orders", nil)
		require.NoError(t, err)

		assert.True(t, engine.Sealed())
		assert.ErrorIs(t, engine.Register("payments", nil), ErrEngineSealed)
	})

	t.Run("global interceptors run ahead of every chain", func(t *testing.T) {
		var trail []string
		global := interceptors.Func("global", func(c *interceptors.Context, next interceptors.Next) error {
			trail = append(trail, "global:"+c.Chain())
			return next()
		})
		engine := New(WithLogger(quietLogger()), WithGlobalInterceptors(global))

		require.NoError(t, engine.Register("orders", nil, logPost(&trail)))
		chain, _ := engine.Chain("orders")
		assert.Equal(t, []string{"global", "LogPost"}, chain.Names())

		_, _, err := engine.Dispatch(context.Background(), "orders", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"global:orders", "LogPost"}, trail)
	})
}

func TestEngine_Invoke(t *testing.T) {
	newEngine := func(trail *[]string) *Engine {
		engine := New(WithLogger(quietLogger()))
		err := engine.Register("process",
			interceptors.HandlerFunc(func(c *interceptors.Context) error {
				*trail = append(*trail, "handler")
				c.SetResult("processed")
				return nil
			}),
			logPre(trail), authCheck(), logPost(trail),
		)
		if err != nil {
			t.Fatal(err)
		}
		return engine
	}

	t.Run("anonymous exchange halts before LogPost", func(t *testing.T) {
		var trail []string
		engine := newEngine(&trail)

		c, outcome, err := engine.Dispatch(context.Background(), "process", nil)

		require.NoError(t, err)
		assert.Equal(t, interceptors.StateHalted, outcome.State)
		assert.Equal(t, "AuthCheck", outcome.Interceptor)
		assert.True(t, c.Halted())
		assert.Nil(t, c.Result())
		assert.Equal(t, []string{"LogPre:before", "LogPre:after"}, trail)
	})

	t.Run("authenticated exchange completes and LogPre finishes last", func(t *testing.T) {
		var trail []string
		engine := newEngine(&trail)

		c, outcome, err := engine.Dispatch(context.Background(), "process", map[string]interface{}{
			interceptors.UserKey: "alice",
		})

		require.NoError(t, err)
		assert.Equal(t, interceptors.StateCompleted, outcome.State)
		assert.Equal(t, "process", c.Chain())
		assert.Equal(t, "processed", c.Result())
		assert.Equal(t, []string{"LogPre:before", "LogPost", "handler", "LogPre:after"}, trail)
	})

	t.Run("unknown chain", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()))

		_, outcome, err := engine.Dispatch(context.Background(), "missing", nil)

		assert.ErrorIs(t, err, ErrUnknownChain)
		var unknown *UnknownChainError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "missing", unknown.Chain)
		assert.Equal(t, interceptors.StateFailed, outcome.State)
	})

	t.Run("nil context", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()))
		require.NoError(t, engine.Register("orders", nil))

		_, err := engine.Invoke("orders", nil)
		assert.ErrorIs(t, err, interceptors.ErrNilContext)
	})

	t.Run("failures name the originating interceptor", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()))
		cause := errors.New("stock service down")
		require.NoError(t, engine.Register("orders",
			interceptors.HandlerFunc(func(c *interceptors.Context) error { return cause }),
			interceptors.NewLoggingInterceptor(quietLogger()),
		))

		c, outcome, err := engine.Dispatch(context.Background(), "orders", nil)

		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, interceptors.ErrUnrecovered)
		assert.Equal(t, interceptors.TerminalName, outcome.Interceptor)
		assert.Equal(t, err, c.Err())
	})

	t.Run("uses the configured ID generator", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()), WithIDGenerator(func() string { return "fixed-id" }))
		require.NoError(t, engine.Register("orders", nil))

		c, _, err := engine.Dispatch(context.Background(), "orders", nil)

		require.NoError(t, err)
		assert.Equal(t, "fixed-id", c.ID())
	})

	t.Run("default IDs are unique", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()))
		a := engine.NewContext(context.Background())
		b := engine.NewContext(context.Background())

		assert.NotEqual(t, a.ID(), b.ID())
	})

	t.Run("concurrent dispatches share one chain", func(t *testing.T) {
		engine := New(WithLogger(quietLogger()))
		require.NoError(t, engine.Register("echo",
			interceptors.HandlerFunc(func(c *interceptors.Context) error {
				n, _ := c.GetInt("n")
				c.SetResult(n * 2)
				return nil
			}),
			interceptors.NewAuthenticationInterceptor(interceptors.AttributeAuthenticator(interceptors.UserKey)),
		))
		engine.Seal()

		var wg sync.WaitGroup
		errs := make(chan error, 100)
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				c, outcome, err := engine.Dispatch(context.Background(), "echo", map[string]interface{}{
					"n":                  n,
					interceptors.UserKey: fmt.Sprintf("user-%d", n),
				})
				switch {
				case err != nil:
					errs <- err
				case outcome.State != interceptors.StateCompleted:
					errs <- fmt.Errorf("exchange %d ended %s", n, outcome.State)
				case c.Result() != n*2:
					errs <- fmt.Errorf("exchange %d got %v", n, c.Result())
				}
			}(i)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Error(err)
		}
	})
}
