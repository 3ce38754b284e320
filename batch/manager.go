// Package batch runs named batch jobs through engine chains.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glimte/yunas-go"
	"github.com/glimte/yunas-go/interceptors"
)

// ArgsKey holds the arguments passed to a batch run
const ArgsKey = "batch.args"

// ErrNoBatch is returned by Run when no batch name is given
var ErrNoBatch = errors.New("batch: no batch name given")

// Batch is a job run from the command line
type Batch interface {
	Run(ctx context.Context, args []string) error
}

// Func is a function adapter for Batch
type Func func(ctx context.Context, args []string) error

// Run implements Batch
func (f Func) Run(ctx context.Context, args []string) error {
	return f(ctx, args)
}

// Manager registers batches as chains of an engine. Every batch runs behind
// the manager's interceptors.
type Manager struct {
	engine       *yunas.Engine
	interceptors []interceptors.Interceptor
	prefix       string
	logger       *slog.Logger

	mu    sync.Mutex
	names []string
}

// Option configures a Manager
type Option func(*Manager)

// WithInterceptors sets the interceptors run ahead of every batch
func WithInterceptors(chain ...interceptors.Interceptor) Option {
	return func(m *Manager) {
		m.interceptors = append(m.interceptors, chain...)
	}
}

// WithPrefix sets the prefix of the chain names batches are registered under
func WithPrefix(prefix string) Option {
	return func(m *Manager) {
		m.prefix = prefix
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager registering batches on engine
func NewManager(engine *yunas.Engine, opts ...Option) *Manager {
	m := &Manager{
		engine: engine,
		prefix: "batch.",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers b under name
func (m *Manager) Add(name string, b Batch) error {
	if b == nil {
		return fmt.Errorf("batch %q: nil batch", name)
	}

	terminal := interceptors.HandlerFunc(func(c *interceptors.Context) error {
		args, _ := interceptors.Attribute[[]string](c, ArgsKey)
		return b.Run(c.Context(), args)
	})

	if err := m.engine.Register(m.prefix+name, terminal, m.interceptors...); err != nil {
		return err
	}

	m.mu.Lock()
	m.names = append(m.names, name)
	m.mu.Unlock()
	return nil
}

// Names returns the registered batch names in registration order
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Run runs the batch named args[0] with the remaining arguments
func (m *Manager) Run(ctx context.Context, args []string) (interceptors.Outcome, error) {
	if len(args) == 0 || args[0] == "" {
		return interceptors.Outcome{State: interceptors.StateFailed, Position: -1}, ErrNoBatch
	}
	name, rest := args[0], append([]string(nil), args[1:]...)

	c := m.engine.NewContext(ctx)
	c.Set(ArgsKey, rest)

	m.logger.Info("batch started", "batch", name, "exchangeId", c.ID())
	outcome, err := m.engine.Invoke(m.prefix+name, c)
	if err != nil {
		var unknown *yunas.UnknownChainError
		if errors.As(err, &unknown) {
			return outcome, &yunas.UnknownChainError{Chain: name}
		}
		m.logger.Error("batch failed",
			"batch", name,
			"exchangeId", c.ID(),
			"interceptor", outcome.Interceptor,
			"error", err,
		)
		return outcome, err
	}

	m.logger.Info("batch finished", "batch", name, "state", outcome.State.String())
	return outcome, nil
}
