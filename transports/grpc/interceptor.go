// Package grpc runs gRPC unary calls through engine chains.
package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/glimte/yunas-go"
	"github.com/glimte/yunas-go/interceptors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcmd "google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Attribute keys set on every exchange created from a call
const (
	RequestKey  = "grpc.request"
	MethodKey   = "grpc.method"
	MetadataKey = "grpc.metadata"
	handlerKey  = "grpc.handler"
)

// Invoker dispatches exchanges on named chains. *yunas.Engine satisfies it.
type Invoker interface {
	NewContext(ctx context.Context) *interceptors.Context
	Invoke(chain string, c *interceptors.Context) (interceptors.Outcome, error)
}

type options struct {
	selector    func(fullMethod string) string
	passthrough bool
	userKey     string
	traceKey    string
	logger      *slog.Logger
}

// Option configures the server interceptor
type Option func(*options)

// WithChainSelector maps a full method name to a chain name
func WithChainSelector(selector func(fullMethod string) string) Option {
	return func(o *options) {
		o.selector = selector
	}
}

// WithPassthrough calls the handler directly for methods without a chain
// instead of failing with Unimplemented
func WithPassthrough(passthrough bool) Option {
	return func(o *options) {
		o.passthrough = passthrough
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// UnaryServerInterceptor returns a grpc.UnaryServerInterceptor dispatching
// every call on the chain selected for its method. Chains must end with
// Terminal() to reach the gRPC handler.
func UnaryServerInterceptor(engine Invoker, opts ...Option) grpc.UnaryServerInterceptor {
	o := &options{
		selector: func(fullMethod string) string { return fullMethod },
		userKey:  "x-user",
		traceKey: "x-trace-id",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		md, _ := grpcmd.FromIncomingContext(ctx)

		c := engine.NewContext(ctx)
		c.Set(RequestKey, req)
		c.Set(MethodKey, info.FullMethod)
		c.Set(MetadataKey, md)
		c.Set(handlerKey, handler)
		if v := md.Get(o.userKey); len(v) > 0 && v[0] != "" {
			c.Set(interceptors.UserKey, v[0])
		}
		if v := md.Get(o.traceKey); len(v) > 0 && v[0] != "" {
			c.Set(interceptors.TraceIDKey, v[0])
		}

		chain := o.selector(info.FullMethod)
		outcome, err := engine.Invoke(chain, c)
		if err != nil {
			if o.passthrough && errors.Is(err, yunas.ErrUnknownChain) {
				return handler(ctx, req)
			}
			return nil, toStatus(o.logger, info.FullMethod, err)
		}

		result := c.Result()
		if outcome.State == interceptors.StateHalted {
			if sc, ok := result.(*interceptors.ShortCircuitResult); ok {
				if sc.Result != nil {
					return sc.Result, nil
				}
				return nil, status.Error(codes.PermissionDenied, sc.Reason)
			}
			if result == nil {
				return nil, status.Errorf(codes.PermissionDenied, "halted by %s", outcome.Interceptor)
			}
		}

		return result, nil
	}
}

// Terminal is the terminal handler of chains served over gRPC: it calls the
// service method and deposits its reply as the result
func Terminal() interceptors.Handler {
	return interceptors.HandlerFunc(func(c *interceptors.Context) error {
		handler, ok := interceptors.Attribute[grpc.UnaryHandler](c, handlerKey)
		if !ok {
			return status.Error(codes.Internal, "exchange was not created by the grpc transport")
		}
		req, _ := c.Get(RequestKey)

		reply, err := handler(c.Context(), req)
		if err != nil {
			return err
		}
		c.SetResult(reply)
		return nil
	})
}

// Metadata returns the incoming metadata of an exchange
func Metadata(c *interceptors.Context) grpcmd.MD {
	md, _ := interceptors.Attribute[grpcmd.MD](c, MetadataKey)
	return md
}

func toStatus(logger *slog.Logger, method string, err error) error {
	if errors.Is(err, yunas.ErrUnknownChain) {
		return status.Errorf(codes.Unimplemented, "method %s is not served by any chain", method)
	}

	var se interface{ GRPCStatus() *status.Status }
	if errors.As(err, &se) {
		return se.GRPCStatus().Err()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}

	logger.Error("grpc call failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}
