package interceptors

import (
	"fmt"
	"log/slog"
)

// Filter decides whether an exchange continues down the chain
type Filter interface {
	// ShouldProcess returns true if the exchange should be processed
	ShouldProcess(c *Context) (bool, error)
}

// FilterFunc is a function adapter for Filter
type FilterFunc func(c *Context) (bool, error)

// ShouldProcess implements Filter
func (f FilterFunc) ShouldProcess(c *Context) (bool, error) {
	return f(c)
}

// FilteringInterceptor halts exchanges rejected by its filter
type FilteringInterceptor struct {
	filter       Filter
	skipBehavior SkipBehavior
	logger       *slog.Logger
}

// SkipBehavior defines what happens when an exchange is filtered out
type SkipBehavior int

const (
	// SkipSilently halts the chain without error
	SkipSilently SkipBehavior = iota
	// SkipWithError fails the exchange
	SkipWithError
	// SkipWithLog halts the chain and logs that the exchange was skipped
	SkipWithLog
)

// NewFilteringInterceptor creates a new filtering interceptor
func NewFilteringInterceptor(filter Filter, skipBehavior SkipBehavior) *FilteringInterceptor {
	return &FilteringInterceptor{
		filter:       filter,
		skipBehavior: skipBehavior,
		logger:       slog.Default(),
	}
}

// WithLogger sets the logger used by SkipWithLog
func (i *FilteringInterceptor) WithLogger(logger *slog.Logger) *FilteringInterceptor {
	i.logger = logger
	return i
}

// Intercept implements Interceptor
func (i *FilteringInterceptor) Intercept(c *Context, next Next) error {
	shouldProcess, err := i.filter.ShouldProcess(c)
	if err != nil {
		return fmt.Errorf("filter error: %w", err)
	}

	if !shouldProcess {
		switch i.skipBehavior {
		case SkipWithError:
			return fmt.Errorf("exchange filtered: chain=%s, id=%s", c.Chain(), c.ID())
		case SkipWithLog:
			i.logger.Info("exchange skipped by filter",
				"exchangeId", c.ID(),
				"chain", c.Chain(),
			)
			return nil
		default: // SkipSilently
			return nil
		}
	}

	return next()
}

// Name implements Interceptor
func (i *FilteringInterceptor) Name() string {
	return "FilteringInterceptor"
}

// AllOf combines filters with AND logic
func AllOf(filters ...Filter) Filter {
	return FilterFunc(func(c *Context) (bool, error) {
		for _, filter := range filters {
			shouldProcess, err := filter.ShouldProcess(c)
			if err != nil {
				return false, err
			}
			if !shouldProcess {
				return false, nil
			}
		}
		return true, nil
	})
}

// AnyOf combines filters with OR logic
func AnyOf(filters ...Filter) Filter {
	return FilterFunc(func(c *Context) (bool, error) {
		for _, filter := range filters {
			shouldProcess, err := filter.ShouldProcess(c)
			if err != nil {
				return false, err
			}
			if shouldProcess {
				return true, nil
			}
		}
		return false, nil
	})
}

// ChainFilter only lets exchanges dispatched on the given chains through
func ChainFilter(chains ...string) Filter {
	allowed := make(map[string]bool, len(chains))
	for _, name := range chains {
		allowed[name] = true
	}
	return FilterFunc(func(c *Context) (bool, error) {
		return allowed[c.Chain()], nil
	})
}

// AttributeFilter lets exchanges through whose attribute key equals expected
func AttributeFilter(key string, expected interface{}) Filter {
	return FilterFunc(func(c *Context) (bool, error) {
		value, exists := c.Get(key)
		if !exists {
			return false, nil
		}
		return value == expected, nil
	})
}

// ConditionalInterceptor runs an interceptor only if a condition holds, and
// otherwise continues the chain directly
type ConditionalInterceptor struct {
	condition   Filter
	interceptor Interceptor
}

// NewConditionalInterceptor creates a new conditional interceptor
func NewConditionalInterceptor(condition Filter, interceptor Interceptor) *ConditionalInterceptor {
	return &ConditionalInterceptor{
		condition:   condition,
		interceptor: interceptor,
	}
}

// Intercept implements Interceptor
func (i *ConditionalInterceptor) Intercept(c *Context, next Next) error {
	shouldExecute, err := i.condition.ShouldProcess(c)
	if err != nil {
		return err
	}

	if shouldExecute {
		return i.interceptor.Intercept(c, next)
	}

	return next()
}

// Name implements Interceptor
func (i *ConditionalInterceptor) Name() string {
	return fmt.Sprintf("ConditionalInterceptor[%s]", NameOf(i.interceptor))
}
