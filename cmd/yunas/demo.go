package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glimte/yunas-go"
	"github.com/glimte/yunas-go/batch"
	"github.com/glimte/yunas-go/health"
	"github.com/glimte/yunas-go/interceptors"
	"github.com/glimte/yunas-go/internal/reliability"
	"github.com/glimte/yunas-go/metrics"
	grpctransport "github.com/glimte/yunas-go/transports/grpc"
	httptransport "github.com/glimte/yunas-go/transports/http"
	"github.com/glimte/yunas-go/transports/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	processChain = "process"
	healthMethod = "/grpc.health.v1.Health/Check"
)

// app bundles the demo engine with the components wired to it
type app struct {
	engine    *yunas.Engine
	collector *metrics.PrometheusCollector
	batches   *batch.Manager
	health    *health.Registry
	logger    *slog.Logger
}

func logPre(logger *slog.Logger) interceptors.Interceptor {
	return interceptors.Func("LogPre", func(c *interceptors.Context, next interceptors.Next) error {
		logger.Info("before", "chain", c.Chain(), "exchangeId", c.ID())
		return next()
	})
}

func authCheck() interceptors.Interceptor {
	return interceptors.NewAuthenticationInterceptor(interceptors.AttributeAuthenticator(interceptors.UserKey))
}

func logPost(logger *slog.Logger) interceptors.Interceptor {
	return interceptors.Func("LogPost", func(c *interceptors.Context, next interceptors.Next) error {
		user, _ := c.GetString(interceptors.UserKey)
		logger.Info("authenticated", "chain", c.Chain(), "user", user)
		return next()
	})
}

func greet(c *interceptors.Context) error {
	user, _ := c.GetString(interceptors.UserKey)
	c.SetResult(map[string]string{
		"message":    fmt.Sprintf("hello %s", user),
		"exchangeId": c.ID(),
	})
	return nil
}

// newApp registers the demo chains: the LogPre, AuthCheck, LogPost chain
// served over HTTP and AMQP, a gRPC health check chain and two batches
func newApp(logger *slog.Logger, rate int) (*app, error) {
	collector := metrics.NewPrometheusCollector()

	globals := []interceptors.Interceptor{
		interceptors.NewTraceInterceptor(),
		interceptors.NewMetricsInterceptor(collector),
	}
	if rate > 0 {
		globals = append(globals, interceptors.NewThrottleInterceptor(interceptors.NewUberLimiter(rate)))
	}

	engine := yunas.New(
		yunas.WithLogger(logger),
		yunas.WithGlobalInterceptors(globals...),
	)

	if err := engine.Register(processChain,
		interceptors.HandlerFunc(greet),
		logPre(logger), authCheck(), logPost(logger),
	); err != nil {
		return nil, err
	}

	breaker := reliability.NewCircuitBreaker(
		reliability.WithName("grpc.health"),
		reliability.WithLogger(logger),
	)
	terminal := interceptors.NewRetryHandler(grpctransport.Terminal(), reliability.NewFixedDelay(50*time.Millisecond, 3)).
		WithLogger(logger)
	if err := engine.Register(healthMethod, terminal,
		logPre(logger), interceptors.NewCircuitBreakerInterceptor(breaker),
	); err != nil {
		return nil, err
	}

	batches := batch.NewManager(engine,
		batch.WithLogger(logger),
		batch.WithInterceptors(logPre(logger)),
	)
	if err := batches.Add("echo", batch.Func(func(ctx context.Context, args []string) error {
		fmt.Println(strings.Join(args, " "))
		return nil
	})); err != nil {
		return nil, err
	}
	if err := batches.Add("chains", batch.Func(func(ctx context.Context, args []string) error {
		for _, name := range engine.Chains() {
			chain, _ := engine.Chain(name)
			fmt.Printf("%-40s %s\n", name, strings.Join(chain.Names(), " -> "))
		}
		return nil
	})); err != nil {
		return nil, err
	}

	engine.Seal()

	checks := health.NewRegistry(5*time.Second, logger)
	checks.Register(
		health.NewEngineChecker(engine),
		health.NewGoroutineChecker(500, 1000),
	)

	return &app{
		engine:    engine,
		collector: collector,
		batches:   batches,
		health:    checks,
		logger:    logger,
	}, nil
}

func (a *app) httpServer(addr string) *httptransport.Server {
	server := httptransport.NewServer(a.engine,
		httptransport.WithLogger(a.logger),
		httptransport.WithAddress(addr),
	)
	server.Handle("GET", "/process", processChain)
	server.Handle("POST", "/process", processChain)
	server.Handler("GET", "/metrics", a.collector.Handler())
	server.Handler("GET", "/healthz", a.health.Handler())
	return server
}

// dispatcher selects the chain by routing key, or always dispatches on chain
// when it is set
func (a *app) dispatcher(chain string, requeue bool) *rabbitmq.Dispatcher {
	var selector rabbitmq.ChainSelector = rabbitmq.RoutingKeySelector
	if chain != "" {
		selector = func(amqp.Delivery) string { return chain }
	}
	return rabbitmq.NewDispatcher(a.engine,
		rabbitmq.WithLogger(a.logger),
		rabbitmq.WithRequeue(requeue),
		rabbitmq.WithChainSelector(selector),
	)
}
