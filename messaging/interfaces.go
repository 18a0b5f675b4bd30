package messaging

import (
	"context"
	"time"

	"github.com/glimte/hostbridge/contracts"
)

// Poster hands an envelope to the host channel
type Poster interface {
	PostRaw(ctx context.Context, env contracts.Envelope) error
}

// Outcome describes how a pending request was settled
type Outcome string

const (
	OutcomeResolved    Outcome = "resolved"
	OutcomeRemoteError Outcome = "remote_error"
	OutcomeTimedOut    Outcome = "timed_out"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeClosed      Outcome = "closed"
	OutcomePostFailed  Outcome = "post_failed"
	OutcomeHostLost    Outcome = "host_lost"
)

// DropReason describes why an inbound message was discarded
type DropReason string

const (
	DropLateReply DropReason = "late_reply"
	DropMalformed DropReason = "malformed"
	DropNoRoute   DropReason = "no_subscribers"
)

// MetricsCollector collects bridge metrics
type MetricsCollector interface {
	// RecordSent records a request handed to the host
	RecordSent(kind string)

	// RecordSettled records how and how fast a pending request finished
	RecordSettled(kind string, outcome Outcome, duration time.Duration)

	// RecordDropped records a discarded inbound message
	RecordDropped(reason DropReason)

	// RecordEvent records a dispatched push event
	RecordEvent(topic string, delivered int)

	// RecordHandlerFailure records an event handler that returned an error or panicked
	RecordHandlerFailure(topic string)
}

// NoOpMetricsCollector is a no-op implementation of MetricsCollector
type NoOpMetricsCollector struct{}

// RecordSent does nothing
func (NoOpMetricsCollector) RecordSent(kind string) {}

// RecordSettled does nothing
func (NoOpMetricsCollector) RecordSettled(kind string, outcome Outcome, duration time.Duration) {}

// RecordDropped does nothing
func (NoOpMetricsCollector) RecordDropped(reason DropReason) {}

// RecordEvent does nothing
func (NoOpMetricsCollector) RecordEvent(topic string, delivered int) {}

// RecordHandlerFailure does nothing
func (NoOpMetricsCollector) RecordHandlerFailure(topic string) {}
