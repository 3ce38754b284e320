// Package yunas is the chain execution engine of the yunas request-processing
// framework.
//
// An Engine owns named chains of interceptors (see package interceptors).
// Chains are registered once at startup; afterwards the engine dispatches
// exchanges to them concurrently:
//
//	engine := yunas.New(yunas.WithLogger(logger))
//
//	err := engine.Register("orders", interceptors.HandlerFunc(placeOrder),
//		interceptors.NewLoggingInterceptor(logger),
//		interceptors.NewAuthenticationInterceptor(interceptors.AttributeAuthenticator(interceptors.UserKey)),
//	)
//
//	c := engine.NewContext(ctx)
//	c.Set(interceptors.UserKey, "alice")
//	outcome, err := engine.Invoke("orders", c)
//
// Transport adapters under transports/ and the batch package create contexts
// from incoming work and hand them to the engine.
package yunas
