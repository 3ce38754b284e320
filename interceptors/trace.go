package interceptors

import (
	"context"

	"github.com/google/uuid"
)

type traceIDKey struct{}

// TraceInterceptor makes sure every exchange carries a trace ID. An ID already
// present under TraceIDKey (set by a transport adapter) is kept.
type TraceInterceptor struct {
	generate func() string
}

// NewTraceInterceptor creates a trace interceptor generating uuid trace IDs
func NewTraceInterceptor() *TraceInterceptor {
	return &TraceInterceptor{generate: uuid.NewString}
}

// Intercept implements Interceptor
func (i *TraceInterceptor) Intercept(c *Context, next Next) error {
	traceID, ok := c.GetString(TraceIDKey)
	if !ok || traceID == "" {
		traceID = i.generate()
		c.Set(TraceIDKey, traceID)
	}

	c.WithContext(context.WithValue(c.Context(), traceIDKey{}, traceID))
	return next()
}

// Name implements Interceptor
func (i *TraceInterceptor) Name() string {
	return "TraceInterceptor"
}

// TraceIDFromContext extracts the trace ID attached by TraceInterceptor.
// Returns an empty string if no trace ID is found.
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		return traceID
	}
	return ""
}
