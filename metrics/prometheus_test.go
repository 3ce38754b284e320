package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	t.Run("counts invocations per chain", func(t *testing.T) {
		collector := NewPrometheusCollector()

		collector.IncrementInvocationCount("orders")
		collector.IncrementInvocationCount("orders")
		collector.IncrementInvocationCount("payments")

		assert.Equal(t, 2.0, testutil.ToFloat64(collector.invocations.WithLabelValues("orders")))
		assert.Equal(t, 1.0, testutil.ToFloat64(collector.invocations.WithLabelValues("payments")))
	})

	t.Run("counts errors per type", func(t *testing.T) {
		collector := NewPrometheusCollector()

		collector.IncrementErrorCount("orders", "panic")
		collector.IncrementErrorCount("orders", "panic")
		collector.IncrementErrorCount("orders", "cancelled")

		assert.Equal(t, 2.0, testutil.ToFloat64(collector.errors.WithLabelValues("orders", "panic")))
		assert.Equal(t, 2, testutil.CollectAndCount(collector.errors))
	})

	t.Run("observes durations", func(t *testing.T) {
		expected := `
# HELP test_engine_chain_duration_seconds Time spent in the remainder of a chain
# TYPE test_engine_chain_duration_seconds histogram
test_engine_chain_duration_seconds_bucket{chain="orders",le="0.025"} 1
test_engine_chain_duration_seconds_bucket{chain="orders",le="+Inf"} 1
test_engine_chain_duration_seconds_sum{chain="orders"} 0.02
test_engine_chain_duration_seconds_count{chain="orders"} 1
`
		collector := NewPrometheusCollector(WithNamespace("test"), WithSubsystem("engine"), WithBuckets([]float64{0.025}))
		collector.RecordProcessingTime("orders", 20*time.Millisecond)

		err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected), "test_engine_chain_duration_seconds")
		assert.NoError(t, err)
	})

	t.Run("registers on a shared registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		collector := NewPrometheusCollector(WithRegistry(registry))

		assert.Same(t, registry, collector.Registry())
		assert.Panics(t, func() {
			NewPrometheusCollector(WithRegistry(registry))
		})
	})

	t.Run("Handler exposes metrics", func(t *testing.T) {
		collector := NewPrometheusCollector()
		collector.IncrementInvocationCount("orders")

		rec := httptest.NewRecorder()
		collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `yunas_chain_invocations_total{chain="orders"} 1`)
	})
}
