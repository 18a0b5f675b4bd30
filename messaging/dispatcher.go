package messaging

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/glimte/hostbridge/contracts"
)

// DispatcherOption configures the InboundDispatcher
type DispatcherOption func(*InboundDispatcher)

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *InboundDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherMetrics sets the metrics collector
func WithDispatcherMetrics(metrics MetricsCollector) DispatcherOption {
	return func(d *InboundDispatcher) {
		if metrics != nil {
			d.metrics = metrics
		}
	}
}

// WithDispatchContext sets the context handed to event handlers
func WithDispatchContext(ctx context.Context) DispatcherOption {
	return func(d *InboundDispatcher) {
		if ctx != nil {
			d.ctx = ctx
		}
	}
}

// InboundDispatcher is the single raw hook. It demultiplexes every inbound
// host message into a reply for the registry or an event for the router.
type InboundDispatcher struct {
	registry *CorrelationRegistry
	router   *EventRouter
	logger   *slog.Logger
	metrics  MetricsCollector
	ctx      context.Context

	malformed atomic.Int64
	late      atomic.Int64
}

// NewInboundDispatcher creates a dispatcher over registry and router
func NewInboundDispatcher(registry *CorrelationRegistry, router *EventRouter, opts ...DispatcherOption) *InboundDispatcher {
	d := &InboundDispatcher{
		registry: registry,
		router:   router,
		logger:   slog.Default(),
		metrics:  NoOpMetricsCollector{},
		ctx:      context.Background(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// HandleRaw decodes and routes one raw host message. It never panics and
// never reports errors upward: the host cannot be told about a bad message.
func (d *InboundDispatcher) HandleRaw(data []byte) {
	env, err := contracts.DecodeEnvelope(data)
	if err != nil {
		d.dropMalformed("undecodable", err)
		return
	}
	d.HandleEnvelope(env)
}

// HandleEnvelope routes a decoded envelope
func (d *InboundDispatcher) HandleEnvelope(env contracts.Envelope) {
	if env.CorrelationID != "" {
		if d.registry.IsPending(env.CorrelationID) {
			d.settle(env)
			return
		}
		if d.registry.Issued(env.CorrelationID) {
			d.late.Add(1)
			d.metrics.RecordDropped(DropLateReply)
			d.logger.Debug("late reply dropped",
				"kind", env.Kind,
				"correlationId", env.CorrelationID,
			)
			return
		}
	}

	if env.Kind == "" {
		d.dropMalformed("no kind and no matching correlation id", contracts.ErrMalformedEnvelope)
		return
	}

	d.router.Dispatch(d.ctx, env.Kind, env.Payload)
}

// Malformed returns how many inbound messages were dropped as malformed
func (d *InboundDispatcher) Malformed() int64 {
	return d.malformed.Load()
}

// LateReplies returns how many replies arrived after their request settled
func (d *InboundDispatcher) LateReplies() int64 {
	return d.late.Load()
}

func (d *InboundDispatcher) settle(env contracts.Envelope) {
	var settled bool
	if env.Error != "" {
		settled = d.registry.Reject(env.CorrelationID, env.Error)
	} else {
		settled = d.registry.Resolve(env.CorrelationID, env.Payload)
	}

	// lost a race with timeout or cancellation
	if !settled {
		d.late.Add(1)
		d.metrics.RecordDropped(DropLateReply)
	}
}

func (d *InboundDispatcher) dropMalformed(reason string, err error) {
	d.malformed.Add(1)
	d.metrics.RecordDropped(DropMalformed)
	d.logger.Warn("malformed envelope dropped", "reason", reason, "error", err)
}
