package interceptors

import (
	"fmt"
)

// ShortCircuitResult is deposited in the result slot by interceptors that halt
// the chain on purpose
type ShortCircuitResult struct {
	Result      interface{}
	Reason      string
	Interceptor string
}

// String implements fmt.Stringer
func (r *ShortCircuitResult) String() string {
	if r.Reason != "" {
		return fmt.Sprintf("short-circuited by %s: %s", r.Interceptor, r.Reason)
	}
	return fmt.Sprintf("short-circuited by %s", r.Interceptor)
}

// GetShortCircuitResult extracts the short-circuit result from a context
func GetShortCircuitResult(c *Context) (*ShortCircuitResult, bool) {
	result, ok := c.Result().(*ShortCircuitResult)
	return result, ok && result != nil
}

// stamp returns a copy of result naming the interceptor that halted the chain.
// Evaluators may hand out shared results, so they are never written to.
func stamp(result *ShortCircuitResult, interceptor, reason string) *ShortCircuitResult {
	out := ShortCircuitResult{Reason: reason}
	if result != nil {
		out = *result
	}
	if out.Interceptor == "" {
		out.Interceptor = interceptor
	}
	return &out
}

// ShortCircuitInterceptor halts the chain based on conditions
type ShortCircuitInterceptor struct {
	evaluator ShortCircuitEvaluator
}

// ShortCircuitEvaluator determines if the chain should be short-circuited
type ShortCircuitEvaluator interface {
	// ShouldShortCircuit returns true if the chain should be short-circuited
	// It can also return a result that will be available to the caller
	ShouldShortCircuit(c *Context) (bool, *ShortCircuitResult, error)
}

// ShortCircuitEvaluatorFunc is a function adapter for ShortCircuitEvaluator
type ShortCircuitEvaluatorFunc func(c *Context) (bool, *ShortCircuitResult, error)

// ShouldShortCircuit implements ShortCircuitEvaluator
func (f ShortCircuitEvaluatorFunc) ShouldShortCircuit(c *Context) (bool, *ShortCircuitResult, error) {
	return f(c)
}

// NewShortCircuitInterceptor creates a new short-circuit interceptor
func NewShortCircuitInterceptor(evaluator ShortCircuitEvaluator) *ShortCircuitInterceptor {
	return &ShortCircuitInterceptor{evaluator: evaluator}
}

// Intercept implements Interceptor
func (i *ShortCircuitInterceptor) Intercept(c *Context, next Next) error {
	shouldShortCircuit, result, err := i.evaluator.ShouldShortCircuit(c)
	if err != nil {
		return err
	}

	if shouldShortCircuit {
		c.SetResult(stamp(result, i.Name(), ""))
		return nil
	}

	return next()
}

// Name implements Interceptor
func (i *ShortCircuitInterceptor) Name() string {
	return "ShortCircuitInterceptor"
}

// DuplicateDetectionInterceptor prevents processing the same exchange twice
type DuplicateDetectionInterceptor struct {
	detector DuplicateDetector
	key      func(c *Context) string
}

// DuplicateDetector defines the interface for duplicate detection
type DuplicateDetector interface {
	IsDuplicate(c *Context, key string) (bool, error)
	MarkProcessed(c *Context, key string) error
}

// NewDuplicateDetectionInterceptor creates a new duplicate detection interceptor.
// key extracts the deduplication key; the exchange ID is used when nil.
func NewDuplicateDetectionInterceptor(detector DuplicateDetector, key func(c *Context) string) *DuplicateDetectionInterceptor {
	if key == nil {
		key = func(c *Context) string { return c.ID() }
	}
	return &DuplicateDetectionInterceptor{detector: detector, key: key}
}

// Intercept implements Interceptor
func (i *DuplicateDetectionInterceptor) Intercept(c *Context, next Next) error {
	key := i.key(c)

	isDuplicate, err := i.detector.IsDuplicate(c, key)
	if err != nil {
		return err
	}

	if isDuplicate {
		c.SetResult(&ShortCircuitResult{
			Reason:      "duplicate exchange detected",
			Interceptor: i.Name(),
		})
		return nil
	}

	if err := next(); err != nil {
		return err
	}

	return i.detector.MarkProcessed(c, key)
}

// Name implements Interceptor
func (i *DuplicateDetectionInterceptor) Name() string {
	return "DuplicateDetectionInterceptor"
}

// ShortCircuitOnErrorInterceptor turns selected downstream failures into a
// halted exchange
type ShortCircuitOnErrorInterceptor struct {
	errorEvaluator ErrorEvaluator
}

// ErrorEvaluator determines if an error should cause a short-circuit
type ErrorEvaluator interface {
	ShouldShortCircuitOnError(err error) (bool, *ShortCircuitResult)
}

// ErrorEvaluatorFunc is a function adapter for ErrorEvaluator
type ErrorEvaluatorFunc func(err error) (bool, *ShortCircuitResult)

// ShouldShortCircuitOnError implements ErrorEvaluator
func (f ErrorEvaluatorFunc) ShouldShortCircuitOnError(err error) (bool, *ShortCircuitResult) {
	return f(err)
}

// NewShortCircuitOnErrorInterceptor creates a new error-based short-circuit interceptor
func NewShortCircuitOnErrorInterceptor(errorEvaluator ErrorEvaluator) *ShortCircuitOnErrorInterceptor {
	return &ShortCircuitOnErrorInterceptor{errorEvaluator: errorEvaluator}
}

// Intercept implements Interceptor
func (i *ShortCircuitOnErrorInterceptor) Intercept(c *Context, next Next) error {
	err := next()
	if err != nil {
		shouldShortCircuit, result := i.errorEvaluator.ShouldShortCircuitOnError(err)
		if shouldShortCircuit {
			c.SetResult(stamp(result, i.Name(), err.Error()))
			return nil
		}
	}
	return err
}

// Name implements Interceptor
func (i *ShortCircuitOnErrorInterceptor) Name() string {
	return "ShortCircuitOnErrorInterceptor"
}
