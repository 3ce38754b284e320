package interceptors

import (
	"fmt"
	"sync"

	"go.uber.org/ratelimit"
)

// Limiter paces exchanges
type Limiter interface {
	// Wait blocks until the exchange may proceed
	Wait(c *Context) error
}

// UberLimiter implements Limiter using Uber's leaky-bucket ratelimit library,
// with one bucket per key
type UberLimiter struct {
	rate     int
	options  []ratelimit.Option
	key      func(c *Context) string
	limiters sync.Map // map[string]ratelimit.Limiter
	mu       sync.Mutex
}

// NewUberLimiter creates a limiter allowing rate exchanges per second for each
// chain. A rate of zero or less disables pacing.
func NewUberLimiter(rate int, options ...ratelimit.Option) *UberLimiter {
	return &UberLimiter{
		rate:    rate,
		options: options,
		key:     func(c *Context) string { return c.Chain() },
	}
}

// WithKey sets the function deriving the bucket key from an exchange
func (u *UberLimiter) WithKey(key func(c *Context) string) *UberLimiter {
	u.key = key
	return u
}

// getLimiter gets or creates the limiter for the given key
func (u *UberLimiter) getLimiter(key string) ratelimit.Limiter {
	if limiter, ok := u.limiters.Load(key); ok {
		return limiter.(ratelimit.Limiter)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	// Double-check after acquiring lock
	if limiter, ok := u.limiters.Load(key); ok {
		return limiter.(ratelimit.Limiter)
	}

	var limiter ratelimit.Limiter
	if u.rate <= 0 {
		limiter = ratelimit.NewUnlimited()
	} else {
		limiter = ratelimit.New(u.rate, u.options...)
	}
	u.limiters.Store(key, limiter)
	return limiter
}

// Wait implements Limiter
func (u *UberLimiter) Wait(c *Context) error {
	if err := c.Context().Err(); err != nil {
		return err
	}
	u.getLimiter(u.key(c)).Take()
	return c.Context().Err()
}

// ThrottleInterceptor paces exchanges through a Limiter before continuing
type ThrottleInterceptor struct {
	limiter Limiter
}

// NewThrottleInterceptor creates a new throttle interceptor
func NewThrottleInterceptor(limiter Limiter) *ThrottleInterceptor {
	return &ThrottleInterceptor{limiter: limiter}
}

// Intercept implements Interceptor
func (i *ThrottleInterceptor) Intercept(c *Context, next Next) error {
	if err := i.limiter.Wait(c); err != nil {
		return fmt.Errorf("throttled exchange %s on chain %s: %w", c.ID(), c.Chain(), err)
	}

	return next()
}

// Name implements Interceptor
func (i *ThrottleInterceptor) Name() string {
	return "ThrottleInterceptor"
}
