package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/hostbridge/contracts"
	"github.com/glimte/hostbridge/internal/reliability"
)

// Adapter wraps a Host and owns the single inbound hook registration
type Adapter struct {
	host    Host
	logger  *slog.Logger
	retry   reliability.RetryPolicy
	breaker *reliability.CircuitBreaker

	mu         sync.Mutex
	hook       func(data []byte)
	subscribed bool
}

// AdapterOption configures the Adapter
type AdapterOption func(*Adapter)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithPostRetry retries failed posts up to maxRetries times with a fixed delay
func WithPostRetry(maxRetries int, delay time.Duration) AdapterOption {
	return func(a *Adapter) {
		if maxRetries > 0 {
			a.retry = reliability.NewFixedDelay(delay, maxRetries)
		}
	}
}

// WithRetryPolicy sets a custom retry policy for posts
func WithRetryPolicy(policy reliability.RetryPolicy) AdapterOption {
	return func(a *Adapter) {
		a.retry = policy
	}
}

// WithBreaker opens a circuit after threshold consecutive post failures
// and keeps it open for cooldown
func WithBreaker(threshold int, cooldown time.Duration) AdapterOption {
	return func(a *Adapter) {
		if threshold > 0 {
			a.breaker = reliability.NewCircuitBreaker(
				reliability.WithName("host-post"),
				reliability.WithFailureThreshold(threshold),
				reliability.WithTimeout(cooldown),
			)
		}
	}
}

// WithCircuitBreaker sets a preconfigured circuit breaker for posts
func WithCircuitBreaker(cb *reliability.CircuitBreaker) AdapterOption {
	return func(a *Adapter) {
		a.breaker = cb
	}
}

// NewAdapter creates an adapter over host. A nil host is allowed and simply
// reports unavailable.
func NewAdapter(host Host, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		host:   host,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// IsAvailable reports whether the host channel exists right now
func (a *Adapter) IsAvailable() bool {
	if a.host == nil {
		return false
	}
	if r, ok := a.host.(AvailabilityReporter); ok {
		return r.Available()
	}
	return true
}

// PostRaw encodes env and hands it to the host. It does not wait for any reply.
func (a *Adapter) PostRaw(ctx context.Context, env contracts.Envelope) error {
	if !a.IsAvailable() {
		return contracts.ErrHostUnavailable
	}

	data, err := env.Marshal()
	if err != nil {
		return err
	}

	post := func() error {
		if !a.IsAvailable() {
			return reliability.Permanent(contracts.ErrHostUnavailable)
		}
		err := a.host.PostMessage(data)
		if errors.Is(err, contracts.ErrHostUnavailable) {
			return reliability.Permanent(err)
		}
		return err
	}

	attempt := post
	if a.retry != nil {
		attempt = func() error {
			return reliability.Retry(ctx, a.retry, post)
		}
	}

	if a.breaker != nil {
		err = a.breaker.Execute(ctx, attempt)
	} else {
		err = attempt()
	}

	if err != nil {
		a.logger.Debug("host post failed",
			"kind", env.Kind,
			"correlationId", env.CorrelationID,
			"error", err,
		)
		return fmt.Errorf("failed to post %q to host: %w", env.Kind, err)
	}

	a.logger.Debug("posted to host",
		"kind", env.Kind,
		"correlationId", env.CorrelationID,
		"bytes", len(data),
	)
	return nil
}

// SubscribeRaw installs fn as the one inbound hook for the adapter's lifetime.
// A second call, or a host whose hook slot another adapter already holds,
// fails with ErrDuplicateSubscription and changes nothing.
func (a *Adapter) SubscribeRaw(fn func(data []byte)) error {
	if fn == nil {
		return fmt.Errorf("raw hook cannot be nil")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.subscribed {
		a.logger.Error("raw host hook registered twice")
		return contracts.ErrDuplicateSubscription
	}

	if a.host != nil {
		if err := a.host.SetMessageHandler(a.deliver); err != nil {
			a.logger.Error("host already has an inbound hook", "error", err)
			return err
		}
	}
	a.hook = fn
	a.subscribed = true

	return nil
}

// UnsubscribeRaw removes the inbound hook. Safe to call more than once.
func (a *Adapter) UnsubscribeRaw() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.subscribed {
		return
	}

	if a.host != nil {
		_ = a.host.SetMessageHandler(nil)
	}
	a.hook = nil
	a.subscribed = false
}

// Done returns a channel closed when the host goes away for good. It is nil,
// and so never ready, for hosts that do not implement Terminator.
func (a *Adapter) Done() <-chan struct{} {
	if t, ok := a.host.(Terminator); ok {
		return t.Done()
	}
	return nil
}

// Subscribed reports whether the inbound hook is installed
func (a *Adapter) Subscribed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.subscribed
}

// deliver forwards one inbound message to the hook and keeps a panicking
// hook from killing the host's delivery loop
func (a *Adapter) deliver(data []byte) {
	a.mu.Lock()
	hook := a.hook
	a.mu.Unlock()

	if hook == nil {
		a.logger.Debug("inbound message dropped, no hook installed", "bytes", len(data))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("raw hook panicked", "panic", r)
		}
	}()

	hook(data)
}
