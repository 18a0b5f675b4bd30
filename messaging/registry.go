package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/glimte/hostbridge/contracts"
)

// PendingRequest is a request waiting for its reply. It never leaves the registry.
type PendingRequest struct {
	CorrelationID string
	Kind          string
	CreatedAt     time.Time

	timer  *time.Timer
	future *Future
}

// RequestOptions configures a single request
type RequestOptions struct {
	// Timeout bounds the wait for a reply; zero waits forever
	Timeout time.Duration
}

// RegistryOption configures the CorrelationRegistry
type RegistryOption func(*CorrelationRegistry)

// WithRegistryLogger sets the logger
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *CorrelationRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRegistryMetrics sets the metrics collector
func WithRegistryMetrics(metrics MetricsCollector) RegistryOption {
	return func(r *CorrelationRegistry) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithMaxPending caps concurrently pending requests; zero means unlimited
func WithMaxPending(max int) RegistryOption {
	return func(r *CorrelationRegistry) {
		r.maxPending = max
	}
}

// CorrelationRegistry pairs outgoing requests with their replies.
// Correlation ids come from a monotonic counter, so an id is never reused
// while the registry lives.
type CorrelationRegistry struct {
	poster     Poster
	logger     *slog.Logger
	metrics    MetricsCollector
	maxPending int

	mu      sync.Mutex
	pending map[string]*PendingRequest
	counter uint64
	closed  *contracts.ClosedError
}

// NewCorrelationRegistry creates a registry that posts through poster
func NewCorrelationRegistry(poster Poster, opts ...RegistryOption) *CorrelationRegistry {
	r := &CorrelationRegistry{
		poster:  poster,
		logger:  slog.Default(),
		metrics: NoOpMetricsCollector{},
		pending: make(map[string]*PendingRequest),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Request registers a pending entry, posts {kind, correlationId, payload}
// and returns the future for the reply. When posting fails the entry is
// removed again and the error is returned.
func (r *CorrelationRegistry) Request(ctx context.Context, kind string, payload json.RawMessage, opts RequestOptions) (*Future, error) {
	if kind == "" {
		return nil, fmt.Errorf("request kind cannot be empty")
	}

	r.mu.Lock()
	if r.closed != nil {
		closed := r.closed
		r.mu.Unlock()
		return nil, &contracts.RequestError{Op: "send", Kind: kind, Err: closed}
	}
	if r.maxPending > 0 && len(r.pending) >= r.maxPending {
		r.mu.Unlock()
		return nil, &contracts.RequestError{Op: "send", Kind: kind, Err: contracts.ErrTooManyPending}
	}

	r.counter++
	correlationID := strconv.FormatUint(r.counter, 10)
	future := newFuture(kind, correlationID)
	future.cancel = func() bool { return r.Cancel(correlationID) }

	pending := &PendingRequest{
		CorrelationID: correlationID,
		Kind:          kind,
		CreatedAt:     time.Now(),
		future:        future,
	}
	r.pending[correlationID] = pending
	r.mu.Unlock()

	env := contracts.Envelope{
		Kind:          kind,
		CorrelationID: correlationID,
		Payload:       payload,
	}
	if err := r.poster.PostRaw(ctx, env); err != nil {
		reqErr := &contracts.RequestError{Op: "post", Kind: kind, CorrelationID: correlationID, Err: err}
		r.settle(correlationID, nil, reqErr, OutcomePostFailed)
		return nil, reqErr
	}

	// the deadline runs from a successful post, so a slow retried post is
	// never settled as timed out
	if opts.Timeout > 0 {
		r.mu.Lock()
		if r.pending[correlationID] == pending {
			pending.timer = time.AfterFunc(opts.Timeout, func() {
				r.expire(correlationID)
			})
		}
		r.mu.Unlock()
	}

	r.metrics.RecordSent(kind)
	r.logger.Debug("request sent",
		"kind", kind,
		"correlationId", correlationID,
		"timeout", opts.Timeout,
	)

	return future, nil
}

// Resolve fulfils the pending request with payload. Unknown, late and
// duplicate ids are dropped and reported as false.
func (r *CorrelationRegistry) Resolve(correlationID string, payload json.RawMessage) bool {
	return r.settle(correlationID, payload, nil, OutcomeResolved)
}

// Reject fails the pending request with a host-reported error message
func (r *CorrelationRegistry) Reject(correlationID string, message string) bool {
	r.mu.Lock()
	p, ok := r.pending[correlationID]
	r.mu.Unlock()
	if !ok {
		return r.settle(correlationID, nil, nil, OutcomeRemoteError)
	}

	err := &contracts.RequestError{
		Op:            "await",
		Kind:          p.Kind,
		CorrelationID: correlationID,
		Err:           &contracts.RemoteError{Kind: p.Kind, CorrelationID: correlationID, Message: message},
	}
	return r.settle(correlationID, nil, err, OutcomeRemoteError)
}

// Cancel withdraws one pending request, failing its future with context.Canceled
func (r *CorrelationRegistry) Cancel(correlationID string) bool {
	r.mu.Lock()
	p, ok := r.pending[correlationID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	err := &contracts.RequestError{Op: "await", Kind: p.Kind, CorrelationID: correlationID, Err: context.Canceled}
	return r.settle(correlationID, nil, err, OutcomeCancelled)
}

// CancelAll closes the registry: every pending future fails with a
// ClosedError carrying reason, and later requests are refused.
func (r *CorrelationRegistry) CancelAll(reason string) int {
	r.mu.Lock()
	if r.closed == nil {
		r.closed = &contracts.ClosedError{Reason: reason}
	}
	closed := r.closed
	drained := r.drainLocked()
	r.mu.Unlock()

	r.failDrained(drained, closed, OutcomeClosed)
	if len(drained) > 0 {
		r.logger.Info("cancelled pending requests", "count", len(drained), "reason", reason)
	}
	return len(drained)
}

// FailPending fails every pending future with cause, typically
// ErrHostUnavailable once the host has gone away. Unlike CancelAll the
// registry stays open.
func (r *CorrelationRegistry) FailPending(cause error) int {
	r.mu.Lock()
	drained := r.drainLocked()
	r.mu.Unlock()

	r.failDrained(drained, cause, OutcomeHostLost)
	if len(drained) > 0 {
		r.logger.Warn("failed pending requests", "count", len(drained), "error", cause)
	}
	return len(drained)
}

func (r *CorrelationRegistry) drainLocked() []*PendingRequest {
	drained := make([]*PendingRequest, 0, len(r.pending))
	for id, p := range r.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		drained = append(drained, p)
		delete(r.pending, id)
	}
	return drained
}

func (r *CorrelationRegistry) failDrained(drained []*PendingRequest, cause error, outcome Outcome) {
	for _, p := range drained {
		err := &contracts.RequestError{Op: "await", Kind: p.Kind, CorrelationID: p.CorrelationID, Err: cause}
		r.metrics.RecordSettled(p.Kind, outcome, time.Since(p.CreatedAt))
		p.future.complete(nil, err)
	}
}

// Issued reports whether correlationID was handed out by this registry,
// pending or not
func (r *CorrelationRegistry) Issued(correlationID string) bool {
	n, err := strconv.ParseUint(correlationID, 10, 64)
	if err != nil || n == 0 || strconv.FormatUint(n, 10) != correlationID {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return n <= r.counter
}

// IsPending reports whether correlationID is still awaiting a reply
func (r *CorrelationRegistry) IsPending(correlationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[correlationID]
	return ok
}

// PendingCount returns the number of pending requests
func (r *CorrelationRegistry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// MaxPending returns the configured pending limit, zero when unlimited
func (r *CorrelationRegistry) MaxPending() int {
	return r.maxPending
}

func (r *CorrelationRegistry) expire(correlationID string) {
	r.mu.Lock()
	p, ok := r.pending[correlationID]
	r.mu.Unlock()
	if !ok {
		return
	}

	err := &contracts.RequestError{Op: "await", Kind: p.Kind, CorrelationID: correlationID, Err: contracts.ErrRequestTimedOut}
	if r.settle(correlationID, nil, err, OutcomeTimedOut) {
		r.logger.Warn("request timed out",
			"kind", p.Kind,
			"correlationId", correlationID,
			"after", time.Since(p.CreatedAt).Round(time.Millisecond),
		)
	}
}

// settle removes the entry and completes its future. Only the caller that
// deletes the entry under the lock gets to complete it.
func (r *CorrelationRegistry) settle(correlationID string, payload json.RawMessage, err error, outcome Outcome) bool {
	r.mu.Lock()
	p, ok := r.pending[correlationID]
	var timer *time.Timer
	if ok {
		delete(r.pending, correlationID)
		timer = p.timer
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug("reply for unknown correlation id dropped",
			"correlationId", correlationID,
			"outcome", outcome,
		)
		return false
	}

	if timer != nil {
		timer.Stop()
	}

	r.metrics.RecordSettled(p.Kind, outcome, time.Since(p.CreatedAt))
	return p.future.complete(payload, err)
}
