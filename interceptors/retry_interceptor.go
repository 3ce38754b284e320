package interceptors

import (
	"log/slog"

	"github.com/glimte/yunas-go/internal/reliability"
)

// RetryHandler retries a terminal handler according to a retry policy.
//
// Retrying is only offered for the terminal step: an interceptor calling next
// again would re-run the rest of the chain, which the chain rejects with
// ErrReentrantInvocation.
type RetryHandler struct {
	handler     Handler
	retryPolicy reliability.RetryPolicy
	logger      *slog.Logger
}

// NewRetryHandler creates a new retrying terminal handler
func NewRetryHandler(handler Handler, retryPolicy reliability.RetryPolicy) *RetryHandler {
	return &RetryHandler{
		handler:     handler,
		retryPolicy: retryPolicy,
		logger:      slog.Default(),
	}
}

// WithLogger sets the logger for the retry handler
func (r *RetryHandler) WithLogger(logger *slog.Logger) *RetryHandler {
	r.logger = logger
	return r
}

// Handle implements Handler
func (r *RetryHandler) Handle(c *Context) error {
	attempt := 0
	return reliability.Retry(c.Context(), r.retryPolicy, func() error {
		attempt++
		err := r.handler.Handle(c)
		if err != nil {
			r.logger.Debug("terminal handler attempt failed",
				"exchangeId", c.ID(),
				"chain", c.Chain(),
				"attempt", attempt,
				"error", err,
			)
		}
		return err
	})
}
