// Copyright 2024 Yunas Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package yunas

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/glimte/yunas-go/interceptors"
	"github.com/google/uuid"
)

// Engine owns the named chains of an application and dispatches exchanges to
// them.
//
// An Engine has two phases. During the build phase chains are registered;
// Seal, or the first Invoke, ends it. From then on the Engine is read-only and
// safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	sealed  atomic.Bool
	chains  map[string]*interceptors.Chain
	order   []string
	logger  *slog.Logger
	newID   func() string
	globals []interceptors.Interceptor
}

// New creates an engine in its build phase
func New(options ...Option) *Engine {
	cfg := &engineConfig{
		logger: slog.Default(),
		newID:  uuid.NewString,
	}

	for _, opt := range options {
		opt(cfg)
	}

	return &Engine{
		chains:  make(map[string]*interceptors.Chain),
		logger:  cfg.logger,
		newID:   cfg.newID,
		globals: cfg.globals,
	}
}

// Register builds a chain from an ordered list of interceptors and a terminal
// handler and registers it under name
func (e *Engine) Register(name string, terminal interceptors.Handler, chain ...interceptors.Interceptor) error {
	for i, interceptor := range chain {
		if interceptor == nil {
			return fmt.Errorf("chain %q: interceptor at position %d: %w", name, i, ErrNilInterceptor)
		}
	}
	return e.RegisterChain(name, interceptors.NewChain(terminal, chain...))
}

// RegisterChain registers a prebuilt chain under name
func (e *Engine) RegisterChain(name string, chain *interceptors.Chain) error {
	if name == "" {
		return ErrInvalidChainName
	}
	if chain == nil {
		return fmt.Errorf("chain %q: %w", name, ErrNilChain)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sealed.Load() {
		return fmt.Errorf("register chain %q: %w", name, ErrEngineSealed)
	}
	if _, exists := e.chains[name]; exists {
		e.logger.Warn("chain already registered", "chain", name)
		return fmt.Errorf("register chain %q: %w", name, ErrDuplicateChain)
	}

	if len(e.globals) > 0 {
		chain = chain.Prepend(e.globals...)
	}

	e.chains[name] = chain
	e.order = append(e.order, name)

	e.logger.Info("chain registered",
		"chain", name,
		"interceptors", chain.Names(),
	)

	return nil
}

// Seal ends the build phase. It is idempotent.
func (e *Engine) Seal() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sealed.Swap(true) {
		return
	}
	e.logger.Info("engine sealed", "chains", len(e.chains))
}

// Sealed reports whether the build phase is over
func (e *Engine) Sealed() bool {
	return e.sealed.Load()
}

// Chains returns the registered chain names in registration order
func (e *Engine) Chains() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Chain returns the chain registered under name
func (e *Engine) Chain(name string) (*interceptors.Chain, bool) {
	if !e.sealed.Load() {
		e.mu.Lock()
		defer e.mu.Unlock()
	}
	chain, ok := e.chains[name]
	return chain, ok
}

// NewContext creates the context of a new exchange with a fresh ID
func (e *Engine) NewContext(ctx context.Context) *interceptors.Context {
	return interceptors.NewContext(ctx, e.newID())
}

// Invoke dispatches c on the chain registered under name. The first call
// seals the engine.
func (e *Engine) Invoke(name string, c *interceptors.Context) (interceptors.Outcome, error) {
	if !e.sealed.Load() {
		e.Seal()
	}

	chain, ok := e.chains[name]
	if !ok {
		return interceptors.Outcome{State: interceptors.StateFailed, Position: -1}, &UnknownChainError{Chain: name}
	}
	if c == nil {
		return interceptors.Outcome{State: interceptors.StateFailed, Position: -1}, interceptors.ErrNilContext
	}

	c.SetChain(name)
	outcome, err := chain.Invoke(c)
	if err != nil {
		e.logger.Debug("chain invocation failed",
			"chain", name,
			"exchangeId", c.ID(),
			"interceptor", outcome.Interceptor,
			"error", err,
		)
	}

	return outcome, err
}

// Dispatch creates a context carrying attrs, invokes the chain registered under
// name and returns the context for inspection
func (e *Engine) Dispatch(ctx context.Context, name string, attrs map[string]interface{}) (*interceptors.Context, interceptors.Outcome, error) {
	c := e.NewContext(ctx)
	for k, v := range attrs {
		c.Set(k, v)
	}

	outcome, err := e.Invoke(name, c)
	return c, outcome, err
}
