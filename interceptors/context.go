package interceptors

import (
	"context"
	"sync"
)

// Well-known attribute keys shared by the built-in interceptors and adapters
const (
	// UserKey holds the authenticated principal
	UserKey = "user"
	// TraceIDKey holds the trace identifier of the exchange
	TraceIDKey = "trace.id"
)

// Context carries the state of one exchange through a chain.
//
// A Context is created for a single exchange, passed by reference to every
// interceptor and the terminal handler, and read by the caller once the
// invocation has reached a terminal state. It must not be invoked twice.
type Context struct {
	ctx    context.Context
	id     string
	chain  string
	values map[string]interface{}
	mu     sync.RWMutex

	state    State
	position int
	halted   bool
	result   interface{}
	err      error
}

// NewContext creates a new exchange context
func NewContext(ctx context.Context, id string) *Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return &Context{
		ctx:      ctx,
		id:       id,
		values:   make(map[string]interface{}),
		state:    StatePending,
		position: -1,
	}
}

// ID returns the exchange identifier
func (c *Context) ID() string {
	return c.id
}

// Chain returns the name of the chain the context was dispatched on
func (c *Context) Chain() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chain
}

// SetChain records the chain name. Set by the engine before invocation.
func (c *Context) SetChain(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chain = name
}

// Context returns the context.Context used for cancellation and deadlines
func (c *Context) Context() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ctx
}

// WithContext replaces the context.Context of the exchange. Interceptors use it
// to attach deadlines or values for the remainder of the chain.
func (c *Context) WithContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

// Cancelled reports whether the exchange has been cancelled or timed out
func (c *Context) Cancelled() bool {
	return c.Context().Err() != nil
}

// Set stores a value in the attribute bag
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get retrieves a value from the attribute bag
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, exists := c.values[key]
	return value, exists
}

// GetString retrieves a string value from the attribute bag
func (c *Context) GetString(key string) (string, bool) {
	value, exists := c.Get(key)
	if !exists {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

// GetInt retrieves an int value from the attribute bag
func (c *Context) GetInt(key string) (int, bool) {
	value, exists := c.Get(key)
	if !exists {
		return 0, false
	}
	i, ok := value.(int)
	return i, ok
}

// Delete removes a value from the attribute bag
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Keys returns the attribute keys currently set
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	return keys
}

// Attribute retrieves a typed value from the attribute bag
func Attribute[T any](c *Context, key string) (T, bool) {
	var zero T
	value, exists := c.Get(key)
	if !exists {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// SetResult deposits the result of the exchange
func (c *Context) SetResult(result interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result = result
}

// Result returns the deposited result, if any
func (c *Context) Result() interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

// SetError deposits an error. A failed invocation overwrites it with the error
// that escaped the chain.
func (c *Context) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Err returns the error slot
func (c *Context) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Halted reports whether an interceptor declined to continue the chain
func (c *Context) Halted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.halted
}

// State returns the invocation state
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Position returns the index of the step currently running, or -1 before the
// first step. The terminal handler runs at position Len() of the chain.
func (c *Context) Position() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position
}

func (c *Context) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePending {
		return ErrContextConsumed
	}
	c.state = StateRunning
	return nil
}

func (c *Context) enter(position int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = position
}

func (c *Context) finish(state State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.halted = state == StateHalted
	if err != nil {
		c.err = err
	}
}
