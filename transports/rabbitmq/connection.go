package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/glimte/yunas-go/internal/reliability"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionError represents a failure to reach the broker
type ConnectionError struct {
	URL      string // sanitized
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rabbitmq connection error: connect to %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type connectConfig struct {
	policy reliability.RetryPolicy
	dial   func(url string) (*amqp.Connection, error)
	logger *slog.Logger
}

// ConnectOption configures Connect
type ConnectOption func(*connectConfig)

// WithRetryPolicy sets the policy used between dial attempts
func WithRetryPolicy(policy reliability.RetryPolicy) ConnectOption {
	return func(cfg *connectConfig) {
		cfg.policy = policy
	}
}

// WithConnectLogger sets the logger used while connecting
func WithConnectLogger(logger *slog.Logger) ConnectOption {
	return func(cfg *connectConfig) {
		cfg.logger = logger
	}
}

// Connect dials the broker, retrying with exponential backoff until the policy
// gives up or ctx is done
func Connect(ctx context.Context, brokerURL string, options ...ConnectOption) (*amqp.Connection, error) {
	cfg := &connectConfig{
		policy: reliability.NewExponentialBackoff(time.Second, 30*time.Second, 2, 5),
		dial:   amqp.Dial,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	safeURL := SanitizeURL(brokerURL)
	attempts := 0

	var conn *amqp.Connection
	err := reliability.Retry(ctx, cfg.policy, func() error {
		attempts++
		c, err := cfg.dial(brokerURL)
		if err != nil {
			cfg.logger.Warn("rabbitmq dial failed",
				"url", safeURL,
				"attempt", attempts,
				"error", err,
			)
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, &ConnectionError{URL: safeURL, Attempts: attempts, Err: err}
	}

	cfg.logger.Info("connected to RabbitMQ", "url", safeURL)
	return conn, nil
}

// SanitizeURL removes the password from a broker URL
func SanitizeURL(brokerURL string) string {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
