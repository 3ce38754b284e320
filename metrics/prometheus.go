package metrics

import (
	"net/http"
	"time"

	"github.com/glimte/yunas-go/interceptors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector implements interceptors.MetricsCollector on top of a
// Prometheus registry
type PrometheusCollector struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	errors      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

type prometheusConfig struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  *prometheus.Registry
}

// PrometheusOption configures a PrometheusCollector
type PrometheusOption func(*prometheusConfig)

// WithNamespace sets the metric namespace
func WithNamespace(namespace string) PrometheusOption {
	return func(cfg *prometheusConfig) {
		cfg.namespace = namespace
	}
}

// WithSubsystem sets the metric subsystem
func WithSubsystem(subsystem string) PrometheusOption {
	return func(cfg *prometheusConfig) {
		cfg.subsystem = subsystem
	}
}

// WithBuckets sets the histogram buckets, in seconds
func WithBuckets(buckets []float64) PrometheusOption {
	return func(cfg *prometheusConfig) {
		cfg.buckets = buckets
	}
}

// WithRegistry registers the metrics on an existing registry
func WithRegistry(registry *prometheus.Registry) PrometheusOption {
	return func(cfg *prometheusConfig) {
		cfg.registry = registry
	}
}

// NewPrometheusCollector creates the collector and registers its metrics
func NewPrometheusCollector(options ...PrometheusOption) *PrometheusCollector {
	cfg := &prometheusConfig{
		namespace: "yunas",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.registry == nil {
		cfg.registry = prometheus.NewRegistry()
	}

	c := &PrometheusCollector{
		registry: cfg.registry,
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Subsystem: cfg.subsystem,
			Name:      "chain_invocations_total",
			Help:      "Number of exchanges dispatched on a chain",
		}, []string{"chain"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Subsystem: cfg.subsystem,
			Name:      "chain_errors_total",
			Help:      "Number of exchanges that failed, by error type",
		}, []string{"chain", "error_type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Subsystem: cfg.subsystem,
			Name:      "chain_duration_seconds",
			Help:      "Time spent in the remainder of a chain",
			Buckets:   cfg.buckets,
		}, []string{"chain"}),
	}

	c.registry.MustRegister(c.invocations, c.errors, c.duration)
	return c
}

// IncrementInvocationCount implements interceptors.MetricsCollector
func (c *PrometheusCollector) IncrementInvocationCount(chain string) {
	c.invocations.WithLabelValues(chain).Inc()
}

// RecordProcessingTime implements interceptors.MetricsCollector
func (c *PrometheusCollector) RecordProcessingTime(chain string, duration time.Duration) {
	c.duration.WithLabelValues(chain).Observe(duration.Seconds())
}

// IncrementErrorCount implements interceptors.MetricsCollector
func (c *PrometheusCollector) IncrementErrorCount(chain string, errorType string) {
	c.errors.WithLabelValues(chain, errorType).Inc()
}

// Registry returns the registry holding the metrics
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry in the Prometheus text format
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var _ interceptors.MetricsCollector = (*PrometheusCollector)(nil)
