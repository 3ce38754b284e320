package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/glimte/yunas-go/interceptors"
)

const maxSamples = 100

// InMemoryCollector implements interceptors.MetricsCollector in memory
type InMemoryCollector struct {
	mu sync.RWMutex

	invocations map[string]int64
	// errors by chain and error type
	errors          map[string]map[string]int64
	processingTimes map[string]*timeStats
}

type timeStats struct {
	count   int64
	total   time.Duration
	min     time.Duration
	max     time.Duration
	samples []time.Duration
}

// NewInMemoryCollector creates a new in-memory collector
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		invocations:     make(map[string]int64),
		errors:          make(map[string]map[string]int64),
		processingTimes: make(map[string]*timeStats),
	}
}

// IncrementInvocationCount implements interceptors.MetricsCollector
func (c *InMemoryCollector) IncrementInvocationCount(chain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocations[chain]++
}

// RecordProcessingTime implements interceptors.MetricsCollector
func (c *InMemoryCollector) RecordProcessingTime(chain string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.processingTimes[chain]
	if !exists {
		stats = &timeStats{
			min:     duration,
			max:     duration,
			samples: make([]time.Duration, 0, maxSamples),
		}
		c.processingTimes[chain] = stats
	}

	stats.count++
	stats.total += duration
	if duration < stats.min {
		stats.min = duration
	}
	if duration > stats.max {
		stats.max = duration
	}

	// keep the most recent samples for percentiles
	if len(stats.samples) >= maxSamples {
		stats.samples = stats.samples[1:]
	}
	stats.samples = append(stats.samples, duration)
}

// IncrementErrorCount implements interceptors.MetricsCollector
func (c *InMemoryCollector) IncrementErrorCount(chain string, errorType string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.errors[chain] == nil {
		c.errors[chain] = make(map[string]int64)
	}
	c.errors[chain][errorType]++
}

// Summary is a snapshot of the collected metrics
type Summary struct {
	Invocations     map[string]int64            `json:"invocations"`
	Errors          map[string]map[string]int64 `json:"errors"`
	ProcessingStats map[string]ProcessingStats  `json:"processing_stats"`
}

// ProcessingStats holds latency statistics of one chain
type ProcessingStats struct {
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// Summary returns a snapshot of all collected metrics
func (c *InMemoryCollector) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := Summary{
		Invocations:     make(map[string]int64, len(c.invocations)),
		Errors:          make(map[string]map[string]int64, len(c.errors)),
		ProcessingStats: make(map[string]ProcessingStats, len(c.processingTimes)),
	}

	for chain, count := range c.invocations {
		summary.Invocations[chain] = count
	}

	for chain, byType := range c.errors {
		summary.Errors[chain] = make(map[string]int64, len(byType))
		for errorType, count := range byType {
			summary.Errors[chain][errorType] = count
		}
	}

	for chain, stats := range c.processingTimes {
		ps := ProcessingStats{
			Count: stats.count,
			Min:   stats.min,
			Max:   stats.max,
		}
		if stats.count > 0 {
			ps.Avg = stats.total / time.Duration(stats.count)
		}
		if len(stats.samples) > 0 {
			sorted := make([]time.Duration, len(stats.samples))
			copy(sorted, stats.samples)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

			ps.P50 = percentile(sorted, 0.50)
			ps.P95 = percentile(sorted, 0.95)
			ps.P99 = percentile(sorted, 0.99)
		}
		summary.ProcessingStats[chain] = ps
	}

	return summary
}

// ErrorRate returns the share of failed invocations of chain
func (c *InMemoryCollector) ErrorRate(chain string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.invocations[chain]
	if total == 0 {
		return 0
	}

	var failed int64
	for _, count := range c.errors[chain] {
		failed += count
	}
	return float64(failed) / float64(total)
}

// Reset clears all collected metrics
func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invocations = make(map[string]int64)
	c.errors = make(map[string]map[string]int64)
	c.processingTimes = make(map[string]*timeStats)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

var _ interceptors.MetricsCollector = (*InMemoryCollector)(nil)
