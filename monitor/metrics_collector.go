package monitor

import (
	"slices"
	"sync"
	"time"

	"github.com/glimte/hostbridge/messaging"
)

const maxSamples = 100

// SimpleMetricsCollector implements a basic in-memory metrics collector
// for a bridge that can be extended with exporters later
type SimpleMetricsCollector struct {
	mu sync.RWMutex

	// Requests sent by kind
	sent map[string]int64

	// Settled requests by kind and outcome
	outcomes map[string]map[messaging.Outcome]int64

	// Round-trip time stats by kind, resolved requests only
	latency map[string]*TimeStats

	dropped         map[messaging.DropReason]int64
	events          map[string]int64
	deliveries      map[string]int64
	handlerFailures map[string]int64
}

// TimeStats tracks timing statistics
type TimeStats struct {
	Count   int64
	TotalMs int64
	MinMs   int64
	MaxMs   int64
	samples []int64 // last maxSamples, for percentiles
}

// NewSimpleMetricsCollector creates a new in-memory metrics collector
func NewSimpleMetricsCollector() *SimpleMetricsCollector {
	c := &SimpleMetricsCollector{}
	c.reset()
	return c
}

// RecordSent implements messaging.MetricsCollector
func (c *SimpleMetricsCollector) RecordSent(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[kind]++
}

// RecordSettled implements messaging.MetricsCollector
func (c *SimpleMetricsCollector) RecordSettled(kind string, outcome messaging.Outcome, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outcomes[kind] == nil {
		c.outcomes[kind] = make(map[messaging.Outcome]int64)
	}
	c.outcomes[kind][outcome]++

	if outcome == messaging.OutcomeResolved || outcome == messaging.OutcomeRemoteError {
		c.recordLatency(kind, duration)
	}
}

// RecordDropped implements messaging.MetricsCollector
func (c *SimpleMetricsCollector) RecordDropped(reason messaging.DropReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped[reason]++
}

// RecordEvent implements messaging.MetricsCollector
func (c *SimpleMetricsCollector) RecordEvent(topic string, delivered int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[topic]++
	c.deliveries[topic] += int64(delivered)
}

// RecordHandlerFailure implements messaging.MetricsCollector
func (c *SimpleMetricsCollector) RecordHandlerFailure(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlerFailures[topic]++
}

func (c *SimpleMetricsCollector) recordLatency(kind string, duration time.Duration) {
	durationMs := duration.Milliseconds()

	stats, exists := c.latency[kind]
	if !exists {
		stats = &TimeStats{
			MinMs:   durationMs,
			MaxMs:   durationMs,
			samples: make([]int64, 0, maxSamples),
		}
		c.latency[kind] = stats
	}

	stats.Count++
	stats.TotalMs += durationMs
	stats.MinMs = min(stats.MinMs, durationMs)
	stats.MaxMs = max(stats.MaxMs, durationMs)

	if len(stats.samples) >= maxSamples {
		stats.samples = stats.samples[1:]
	}
	stats.samples = append(stats.samples, durationMs)
}

// MetricsSummary represents a snapshot of all metrics
type MetricsSummary struct {
	Sent            map[string]int64                       `json:"sent"`
	Outcomes        map[string]map[messaging.Outcome]int64 `json:"outcomes"`
	Latency         map[string]LatencyStats                `json:"latency"`
	Dropped         map[messaging.DropReason]int64         `json:"dropped"`
	Events          map[string]int64                       `json:"events"`
	Deliveries      map[string]int64                       `json:"deliveries"`
	HandlerFailures map[string]int64                       `json:"handler_failures"`
}

// LatencyStats represents round-trip statistics for a request kind
type LatencyStats struct {
	Count int64 `json:"count"`
	AvgMs int64 `json:"avg_ms"`
	MinMs int64 `json:"min_ms"`
	MaxMs int64 `json:"max_ms"`
	P50Ms int64 `json:"p50_ms"`
	P95Ms int64 `json:"p95_ms"`
	P99Ms int64 `json:"p99_ms"`
}

// TotalSent returns the number of requests sent across all kinds
func (s MetricsSummary) TotalSent() int64 {
	var total int64
	for _, n := range s.Sent {
		total += n
	}
	return total
}

// TotalOutcome returns how many requests across all kinds settled with outcome
func (s MetricsSummary) TotalOutcome(outcome messaging.Outcome) int64 {
	var total int64
	for _, byOutcome := range s.Outcomes {
		total += byOutcome[outcome]
	}
	return total
}

// GetMetricsSummary returns a summary of all collected metrics
func (c *SimpleMetricsCollector) GetMetricsSummary() MetricsSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := MetricsSummary{
		Sent:            copyCounts(c.sent),
		Outcomes:        make(map[string]map[messaging.Outcome]int64, len(c.outcomes)),
		Latency:         make(map[string]LatencyStats, len(c.latency)),
		Dropped:         copyCounts(c.dropped),
		Events:          copyCounts(c.events),
		Deliveries:      copyCounts(c.deliveries),
		HandlerFailures: copyCounts(c.handlerFailures),
	}

	for kind, byOutcome := range c.outcomes {
		summary.Outcomes[kind] = copyCounts(byOutcome)
	}

	for kind, stats := range c.latency {
		ls := LatencyStats{
			Count: stats.Count,
			MinMs: stats.MinMs,
			MaxMs: stats.MaxMs,
		}
		if stats.Count > 0 {
			ls.AvgMs = stats.TotalMs / stats.Count
		}
		if len(stats.samples) > 0 {
			sorted := slices.Clone(stats.samples)
			slices.Sort(sorted)
			ls.P50Ms = percentile(sorted, 0.50)
			ls.P95Ms = percentile(sorted, 0.95)
			ls.P99Ms = percentile(sorted, 0.99)
		}
		summary.Latency[kind] = ls
	}

	return summary
}

// Reset clears all collected metrics
func (c *SimpleMetricsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *SimpleMetricsCollector) reset() {
	c.sent = make(map[string]int64)
	c.outcomes = make(map[string]map[messaging.Outcome]int64)
	c.latency = make(map[string]*TimeStats)
	c.dropped = make(map[messaging.DropReason]int64)
	c.events = make(map[string]int64)
	c.deliveries = make(map[string]int64)
	c.handlerFailures = make(map[string]int64)
}

// percentile picks from samples sorted ascending
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

func copyCounts[K comparable](src map[K]int64) map[K]int64 {
	dst := make(map[K]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

var _ messaging.MetricsCollector = (*SimpleMetricsCollector)(nil)
