package interceptors

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
)

// TerminalName is the diagnostic name of the terminal step of every chain
const TerminalName = "terminal"

// Chain is an ordered, immutable sequence of interceptors followed by a
// terminal handler.
//
// A Chain holds no invocation state. Every Invoke allocates its own cursor, so
// one Chain may serve any number of concurrent invocations as long as its
// interceptors are safe for concurrent use.
type Chain struct {
	interceptors []Interceptor
	names        []string
	terminal     Handler
}

// NewChain creates a chain running interceptors in the given order, then
// terminal. Nil interceptors are ignored; a nil terminal does nothing.
func NewChain(terminal Handler, interceptors ...Interceptor) *Chain {
	c := &Chain{
		interceptors: make([]Interceptor, 0, len(interceptors)),
		names:        make([]string, 0, len(interceptors)),
		terminal:     terminal,
	}

	for _, interceptor := range interceptors {
		if interceptor == nil {
			continue
		}
		c.interceptors = append(c.interceptors, interceptor)
		c.names = append(c.names, NameOf(interceptor))
	}

	return c
}

// Len returns the number of interceptors in the chain
func (c *Chain) Len() int {
	return len(c.interceptors)
}

// Names returns the interceptor names in invocation order
func (c *Chain) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Prepend returns a new chain running interceptors before the ones of c
func (c *Chain) Prepend(interceptors ...Interceptor) *Chain {
	combined := make([]Interceptor, 0, len(interceptors)+len(c.interceptors))
	combined = append(combined, interceptors...)
	combined = append(combined, c.interceptors...)
	return NewChain(c.terminal, combined...)
}

// Invoke drives the exchange through the chain.
//
// The returned error is nil when the chain completed or halted, and an
// *UnrecoveredInterceptorError when a failure escaped the first interceptor.
// The Outcome tells which of the terminal states was reached.
func (c *Chain) Invoke(ctx *Context) (Outcome, error) {
	if ctx == nil {
		return Outcome{State: StateFailed, Position: -1}, ErrNilContext
	}
	if err := ctx.begin(); err != nil {
		return Outcome{State: StateFailed, Position: -1}, err
	}

	inv := &invocation{
		chain:      c,
		ctx:        ctx,
		steps:      make([]step, len(c.interceptors)),
		haltedAt:   -1,
		absorbedAt: -1,
		origin:     -1,
	}
	for i := range inv.steps {
		inv.steps[i].inv = inv
		inv.steps[i].index = i
	}

	err := inv.run(0)
	outcome := inv.outcome(err)
	if err != nil {
		err = inv.unrecovered(err)
	}

	ctx.finish(outcome.State, err)
	return outcome, err
}

// invocation is the per-call cursor over an immutable chain. steps is indexed
// by interceptor position and records whether that interceptor continued.
type invocation struct {
	chain *Chain
	ctx   *Context
	steps []step

	terminalDone bool
	haltedAt     int
	absorbedAt   int
	origin       int
}

type step struct {
	inv     *invocation
	index   int
	called  bool
	nextErr error
	// done is set once the interceptor at index has returned
	done atomic.Bool
}

func (s *step) next() error {
	if s.done.Load() {
		return fmt.Errorf("interceptor %s (position %d): %w",
			s.inv.chain.names[s.index], s.index, ErrInvocationFinished)
	}
	if s.called {
		return &ReentrantInvocationError{
			Interceptor: s.inv.chain.names[s.index],
			Position:    s.index,
		}
	}
	s.called = true
	s.nextErr = s.inv.run(s.index + 1)
	s.inv.ctx.enter(s.index)
	return s.nextErr
}

func (inv *invocation) run(i int) (err error) {
	if ctxErr := inv.ctx.Context().Err(); ctxErr != nil {
		inv.origin = i
		return fmt.Errorf("exchange cancelled before %s: %w", inv.nameAt(i), ctxErr)
	}

	inv.ctx.enter(i)
	defer func() {
		if r := recover(); r != nil {
			inv.origin = i
			err = inv.panicked(i, r)
		}
	}()

	if i == len(inv.chain.interceptors) {
		if inv.chain.terminal != nil {
			err = inv.chain.terminal.Handle(inv.ctx)
		}
		if err != nil {
			inv.origin = i
			return err
		}
		inv.terminalDone = true
		return nil
	}

	s := &inv.steps[i]
	defer s.done.Store(true)
	err = inv.chain.interceptors[i].Intercept(inv.ctx, s.next)

	switch {
	case err != nil && (!s.called || s.nextErr == nil):
		inv.origin = i
	case err == nil && !s.called:
		inv.haltedAt = i
	case err == nil && s.nextErr != nil:
		inv.absorbedAt = i
	}

	return err
}

func (inv *invocation) outcome(err error) Outcome {
	switch {
	case err != nil:
		return Outcome{State: StateFailed, Position: inv.origin, Interceptor: inv.nameAt(inv.origin)}
	case inv.haltedAt >= 0:
		return Outcome{State: StateHalted, Position: inv.haltedAt, Interceptor: inv.nameAt(inv.haltedAt)}
	case inv.terminalDone:
		n := len(inv.chain.interceptors)
		return Outcome{State: StateCompleted, Position: n, Interceptor: TerminalName}
	default:
		// a failure was absorbed before the terminal handler completed
		return Outcome{State: StateHalted, Position: inv.absorbedAt, Interceptor: inv.nameAt(inv.absorbedAt)}
	}
}

func (inv *invocation) nameAt(i int) string {
	switch {
	case i < 0:
		return ""
	case i >= len(inv.chain.names):
		return TerminalName
	default:
		return inv.chain.names[i]
	}
}

func (inv *invocation) panicked(i int, r interface{}) error {
	var cause error
	if e, ok := r.(error); ok {
		cause = fmt.Errorf("panic: %w", e)
	} else {
		cause = fmt.Errorf("panic: %v", r)
	}

	return &UnrecoveredInterceptorError{
		Interceptor: inv.nameAt(i),
		Position:    i,
		Err:         cause,
		Panic:       r,
		Stack:       debug.Stack(),
	}
}

func (inv *invocation) unrecovered(err error) error {
	var ue *UnrecoveredInterceptorError
	if errors.As(err, &ue) {
		return err
	}

	return &UnrecoveredInterceptorError{
		Interceptor: inv.nameAt(inv.origin),
		Position:    inv.origin,
		Err:         err,
	}
}
