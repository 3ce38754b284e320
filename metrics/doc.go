// Package metrics provides implementations of interceptors.MetricsCollector.
//
// InMemoryCollector keeps per-chain counters and latency samples in process
// and is meant for tests and small deployments. PrometheusCollector exports
// the same figures through a Prometheus registry:
//
//	collector := metrics.NewPrometheusCollector(metrics.WithNamespace("yunas"))
//	chain := interceptors.NewBuilder(logger).WithMetrics(collector).Build(handler)
//	http.Handle("/metrics", collector.Handler())
package metrics
