package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glimte/yunas-go"
	"github.com/glimte/yunas-go/interceptors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Attribute keys set on every exchange created from a delivery
const (
	DeliveryKey   = "amqp.delivery"
	BodyKey       = "amqp.body"
	RoutingKeyKey = "amqp.routing_key"
	HeadersKey    = "amqp.headers"
)

// ErrDeliveryChannelClosed is returned by Consume when the broker closes the
// delivery channel
var ErrDeliveryChannelClosed = errors.New("rabbitmq: delivery channel closed")

// Invoker dispatches exchanges on named chains. *yunas.Engine satisfies it.
type Invoker interface {
	NewContext(ctx context.Context) *interceptors.Context
	Invoke(chain string, c *interceptors.Context) (interceptors.Outcome, error)
}

// Channel is the part of *amqp.Channel used to consume a queue
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// ChainSelector picks the chain a delivery is dispatched on
type ChainSelector func(delivery amqp.Delivery) string

// RoutingKeySelector dispatches deliveries on the chain named by their routing key
func RoutingKeySelector(delivery amqp.Delivery) string {
	return delivery.RoutingKey
}

// HeaderSelector dispatches deliveries on the chain named by header, falling
// back to the routing key
func HeaderSelector(header string) ChainSelector {
	return func(delivery amqp.Delivery) string {
		if name, ok := delivery.Headers[header].(string); ok && name != "" {
			return name
		}
		return delivery.RoutingKey
	}
}

// Dispatcher runs deliveries through engine chains
type Dispatcher struct {
	engine        Invoker
	selector      ChainSelector
	requeue       bool
	prefetchCount int
	consumerTag   string
	userHeader    string
	logger        *slog.Logger
}

// DispatcherOption configures the dispatcher
type DispatcherOption func(*Dispatcher)

// WithChainSelector sets the chain selector
func WithChainSelector(selector ChainSelector) DispatcherOption {
	return func(d *Dispatcher) {
		d.selector = selector
	}
}

// WithRequeue sets whether failed deliveries are requeued. Deliveries for
// unknown chains are never requeued.
func WithRequeue(requeue bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.requeue = requeue
	}
}

// WithPrefetchCount sets the prefetch count used by Consume
func WithPrefetchCount(count int) DispatcherOption {
	return func(d *Dispatcher) {
		d.prefetchCount = count
	}
}

// WithConsumerTag sets the consumer tag
func WithConsumerTag(tag string) DispatcherOption {
	return func(d *Dispatcher) {
		d.consumerTag = tag
	}
}

// WithUserHeader sets the header copied into the user attribute
func WithUserHeader(header string) DispatcherOption {
	return func(d *Dispatcher) {
		d.userHeader = header
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(engine Invoker, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		engine:        engine,
		selector:      RoutingKeySelector,
		prefetchCount: 10,
		userHeader:    interceptors.UserKey,
		logger:        slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// Handle dispatches one delivery and settles it. The returned error is the
// chain failure or a failure to settle the delivery.
func (d *Dispatcher) Handle(ctx context.Context, delivery amqp.Delivery) (interceptors.Outcome, error) {
	c := d.engine.NewContext(ctx)
	c.Set(DeliveryKey, delivery)
	c.Set(BodyKey, delivery.Body)
	c.Set(RoutingKeyKey, delivery.RoutingKey)
	c.Set(HeadersKey, delivery.Headers)
	if user, ok := delivery.Headers[d.userHeader].(string); ok && user != "" {
		c.Set(interceptors.UserKey, user)
	}
	if delivery.CorrelationId != "" {
		c.Set(interceptors.TraceIDKey, delivery.CorrelationId)
	}

	chain := d.selector(delivery)
	outcome, err := d.engine.Invoke(chain, c)

	if err != nil {
		// a delivery without a chain would come straight back
		requeue := d.requeue && !errors.Is(err, yunas.ErrUnknownChain)
		d.logger.Error("delivery processing failed",
			"chain", chain,
			"messageId", delivery.MessageId,
			"interceptor", outcome.Interceptor,
			"requeue", requeue,
			"error", err,
		)
		if nackErr := delivery.Nack(false, requeue); nackErr != nil {
			return outcome, errors.Join(err, fmt.Errorf("nack delivery %d: %w", delivery.DeliveryTag, nackErr))
		}
		return outcome, err
	}

	if outcome.State == interceptors.StateHalted {
		d.logger.Debug("delivery halted",
			"chain", chain,
			"messageId", delivery.MessageId,
			"interceptor", outcome.Interceptor,
		)
	}

	if ackErr := delivery.Ack(false); ackErr != nil {
		return outcome, fmt.Errorf("ack delivery %d: %w", delivery.DeliveryTag, ackErr)
	}

	return outcome, nil
}

// Consume dispatches the deliveries of queue until ctx is done or the broker
// closes the channel
func (d *Dispatcher) Consume(ctx context.Context, ch Channel, queue string) error {
	if err := ch.Qos(d.prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(queue, d.consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", queue, err)
	}

	d.logger.Info("consuming queue",
		"queue", queue,
		"prefetchCount", d.prefetchCount,
	)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("consumer stopped", "queue", queue)
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				d.logger.Warn("delivery channel closed", "queue", queue)
				return ErrDeliveryChannelClosed
			}

			// failures are logged and settled by Handle
			_, _ = d.Handle(ctx, delivery)
		}
	}
}
