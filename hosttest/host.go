// Package hosttest provides an in-process host for exercising a bridge
// without a native shell. It answers requests through per-kind responders
// and can push events or raw bytes at any time.
package hosttest

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/hostbridge/contracts"
)

// ErrNoReply makes a responder swallow the request, like a host that never answers
var ErrNoReply = errors.New("no reply")

// Responder produces the reply payload for one request. A non-nil error is
// sent back as the reply's error field, except ErrNoReply which sends nothing.
type Responder func(req contracts.Envelope) (interface{}, error)

type route struct {
	responder Responder
	delay     time.Duration
}

// Option configures the Host
type Option func(*Host)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithReplyDelay delays every responder reply unless the route sets its own delay
func WithReplyDelay(delay time.Duration) Option {
	return func(h *Host) {
		h.delay = delay
	}
}

// Host implements transport.Host in memory
type Host struct {
	logger *slog.Logger
	delay  time.Duration

	mu        sync.Mutex
	handler   func(data []byte)
	available bool
	postErr   error
	routes    map[string]route
	posted    []contracts.Envelope
	pending   sync.WaitGroup
}

// New creates an available host with no responders
func New(opts ...Option) *Host {
	h := &Host{
		logger:    slog.Default(),
		available: true,
		routes:    make(map[string]route),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Handle answers requests of kind with responder
func (h *Host) Handle(kind string, responder Responder) {
	h.HandleAfter(kind, -1, responder)
}

// HandleAfter answers requests of kind with responder after delay. A negative
// delay falls back to the host-wide reply delay.
func (h *Host) HandleAfter(kind string, delay time.Duration, responder Responder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[kind] = route{responder: responder, delay: delay}
}

// PostMessage implements transport.Host
func (h *Host) PostMessage(data []byte) error {
	h.mu.Lock()
	if !h.available {
		h.mu.Unlock()
		return contracts.ErrHostUnavailable
	}
	if h.postErr != nil {
		err := h.postErr
		h.mu.Unlock()
		return err
	}

	env, err := contracts.DecodeEnvelope(data)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.posted = append(h.posted, env)
	rt, ok := h.routes[env.Kind]
	delay := h.delay
	h.mu.Unlock()

	if !ok || env.CorrelationID == "" {
		return nil
	}
	if rt.delay >= 0 {
		delay = rt.delay
	}

	h.pending.Add(1)
	time.AfterFunc(delay, func() {
		defer h.pending.Done()
		h.respond(rt.responder, env)
	})
	return nil
}

// SetMessageHandler implements transport.Host
func (h *Host) SetMessageHandler(fn func(data []byte)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fn != nil && h.handler != nil {
		return contracts.ErrDuplicateSubscription
	}
	h.handler = fn
	return nil
}

// Available implements transport.AvailabilityReporter
func (h *Host) Available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.available
}

// SetAvailable makes the host appear or disappear
func (h *Host) SetAvailable(available bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.available = available
}

// SetPostError makes every PostMessage fail with err; nil restores normal posting
func (h *Host) SetPostError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.postErr = err
}

// HasHandler reports whether an inbound hook is installed
func (h *Host) HasHandler() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handler != nil
}

// Posted returns every envelope posted so far
func (h *Host) Posted() []contracts.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]contracts.Envelope(nil), h.posted...)
}

// Reply sends a successful reply for correlationID
func (h *Host) Reply(kind, correlationID string, payload interface{}) error {
	env, err := contracts.NewEnvelope(kind, correlationID, payload)
	if err != nil {
		return err
	}
	return h.deliver(env)
}

// Fail sends an error reply for correlationID
func (h *Host) Fail(kind, correlationID, message string) error {
	return h.deliver(contracts.Envelope{Kind: kind, CorrelationID: correlationID, Error: message})
}

// Push sends a host-initiated event on topic
func (h *Host) Push(topic string, payload interface{}) error {
	env, err := contracts.NewEnvelope(topic, "", payload)
	if err != nil {
		return err
	}
	return h.deliver(env)
}

// DeliverRaw hands data to the inbound hook as is. It reports false when no
// hook is installed.
func (h *Host) DeliverRaw(data []byte) bool {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()

	if handler == nil {
		h.logger.Debug("host message dropped, no handler", "bytes", len(data))
		return false
	}
	handler(data)
	return true
}

// Drain waits until every scheduled responder reply has been delivered
func (h *Host) Drain() {
	h.pending.Wait()
}

func (h *Host) deliver(env contracts.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	h.DeliverRaw(data)
	return nil
}

func (h *Host) respond(responder Responder, req contracts.Envelope) {
	payload, err := responder(req)
	switch {
	case errors.Is(err, ErrNoReply):
		return
	case err != nil:
		err = h.Fail(req.Kind, req.CorrelationID, err.Error())
	default:
		err = h.Reply(req.Kind, req.CorrelationID, payload)
	}
	if err != nil {
		h.logger.Error("host reply failed",
			"kind", req.Kind,
			"correlationId", req.CorrelationID,
			"error", err,
		)
	}
}
