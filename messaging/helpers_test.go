package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/glimte/hostbridge/contracts"
	"github.com/stretchr/testify/mock"
)

// recordingPoster captures posted envelopes
type recordingPoster struct {
	mu     sync.Mutex
	posted []contracts.Envelope
	err    error
}

func (p *recordingPoster) PostRaw(ctx context.Context, env contracts.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.posted = append(p.posted, env)
	return nil
}

func (p *recordingPoster) envelopes() []contracts.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]contracts.Envelope(nil), p.posted...)
}

// Mock Poster
type mockPoster struct {
	mock.Mock
}

func (m *mockPoster) PostRaw(ctx context.Context, env contracts.Envelope) error {
	args := m.Called(ctx, env)
	return args.Error(0)
}

// countingMetrics tallies outcomes and drops
type countingMetrics struct {
	mu       sync.Mutex
	sent     int
	outcomes map[Outcome]int
	dropped  map[DropReason]int
	failures map[string]int
	events   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		outcomes: make(map[Outcome]int),
		dropped:  make(map[DropReason]int),
		failures: make(map[string]int),
		events:   make(map[string]int),
	}
}

func (c *countingMetrics) RecordSent(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
}

func (c *countingMetrics) RecordSettled(kind string, outcome Outcome, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[outcome]++
}

func (c *countingMetrics) RecordDropped(reason DropReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped[reason]++
}

func (c *countingMetrics) RecordEvent(topic string, delivered int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[topic] += delivered
}

func (c *countingMetrics) RecordHandlerFailure(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[topic]++
}

func (c *countingMetrics) outcome(o Outcome) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcomes[o]
}

func (c *countingMetrics) drops(r DropReason) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped[r]
}
