package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/hostbridge/contracts"
	"github.com/glimte/hostbridge/messaging"
	"github.com/glimte/hostbridge/transport"
	"github.com/google/uuid"
)

// Option configures the bridge
type Option func(*Config)

// Config holds configuration for the bridge
type Config struct {
	Logger         *slog.Logger
	Metrics        messaging.MetricsCollector
	DefaultTimeout time.Duration
	MaxPending     int
	Middleware     []messaging.EventMiddleware
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics collector shared by registry, router and dispatcher
func WithMetrics(metrics messaging.MetricsCollector) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithDefaultTimeout sets the timeout applied to requests that do not set
// their own. Zero means requests wait until replied, cancelled or closed.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.DefaultTimeout = timeout
	}
}

// WithMaxPending caps the number of concurrently pending requests
func WithMaxPending(max int) Option {
	return func(c *Config) {
		c.MaxPending = max
	}
}

// WithEventMiddleware wraps every event handler call
func WithEventMiddleware(middleware ...messaging.EventMiddleware) Option {
	return func(c *Config) {
		c.Middleware = append(c.Middleware, middleware...)
	}
}

// SendOption configures one request
type SendOption func(*messaging.RequestOptions)

// WithTimeout overrides the default timeout for one request
func WithTimeout(timeout time.Duration) SendOption {
	return func(o *messaging.RequestOptions) {
		o.Timeout = timeout
	}
}

// WithoutTimeout lets one request wait without a deadline
func WithoutTimeout() SendOption {
	return func(o *messaging.RequestOptions) {
		o.Timeout = 0
	}
}

// Bridge turns the host's raw channel into request/response calls and
// topic subscriptions. Construct one per host; it owns the adapter's
// single inbound hook until Close.
type Bridge struct {
	id             string
	adapter        *transport.Adapter
	registry       *messaging.CorrelationRegistry
	router         *messaging.EventRouter
	dispatcher     *messaging.InboundDispatcher
	logger         *slog.Logger
	defaultTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed *contracts.ClosedError
}

// New creates a bridge over adapter and installs its inbound hook. It fails
// with ErrDuplicateSubscription when the adapter already has a hook.
func New(adapter *transport.Adapter, opts ...Option) (*Bridge, error) {
	if adapter == nil {
		return nil, fmt.Errorf("adapter cannot be nil")
	}

	config := &Config{
		Logger:  slog.Default(),
		Metrics: messaging.NoOpMetricsCollector{},
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = messaging.NoOpMetricsCollector{}
	}

	id := uuid.New().String()[:8]
	logger := config.Logger.With("bridge", id)
	ctx, cancel := context.WithCancel(context.Background())

	registry := messaging.NewCorrelationRegistry(adapter,
		messaging.WithRegistryLogger(logger),
		messaging.WithRegistryMetrics(config.Metrics),
		messaging.WithMaxPending(config.MaxPending),
	)
	router := messaging.NewEventRouter(
		messaging.WithRouterLogger(logger),
		messaging.WithRouterMetrics(config.Metrics),
		messaging.WithEventMiddleware(config.Middleware...),
	)
	dispatcher := messaging.NewInboundDispatcher(registry, router,
		messaging.WithDispatcherLogger(logger),
		messaging.WithDispatcherMetrics(config.Metrics),
		messaging.WithDispatchContext(ctx),
	)

	if err := adapter.SubscribeRaw(dispatcher.HandleRaw); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to install host hook: %w", err)
	}

	logger.Info("bridge started",
		"hostAvailable", adapter.IsAvailable(),
		"defaultTimeout", config.DefaultTimeout,
		"maxPending", config.MaxPending,
	)

	b := &Bridge{
		id:             id,
		adapter:        adapter,
		registry:       registry,
		router:         router,
		dispatcher:     dispatcher,
		logger:         logger,
		defaultTimeout: config.DefaultTimeout,
		ctx:            ctx,
		cancel:         cancel,
	}

	if done := adapter.Done(); done != nil {
		go b.watchHost(done)
	}

	return b, nil
}

// watchHost fails every pending request once the host is gone for good,
// since nothing can answer them any more
func (b *Bridge) watchHost(done <-chan struct{}) {
	select {
	case <-done:
		failed := b.registry.FailPending(contracts.ErrHostUnavailable)
		b.logger.Warn("host went away", "failedRequests", failed)
	case <-b.ctx.Done():
	}
}

// ID returns the short instance id used in logs
func (b *Bridge) ID() string {
	return b.id
}

// Send posts a request and blocks until its reply, an error reply, the
// request timeout, ctx, or Close. Giving up on ctx withdraws the request.
func (b *Bridge) Send(ctx context.Context, kind string, payload interface{}, opts ...SendOption) (json.RawMessage, error) {
	f := b.SendAsync(ctx, kind, payload, opts...)

	reply, err := f.Wait(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		if f.Cancel() {
			return nil, &contracts.RequestError{Op: "await", Kind: kind, CorrelationID: f.CorrelationID(), Err: ctx.Err()}
		}
		// settled while we were giving up
		return f.Result()
	}
	return reply, err
}

// SendAsync posts a request and returns its future without blocking. Errors
// that prevent posting are reported through an already failed future.
func (b *Bridge) SendAsync(ctx context.Context, kind string, payload interface{}, opts ...SendOption) *messaging.Future {
	if closed := b.closedErr(); closed != nil {
		return messaging.FailedFuture(kind, &contracts.RequestError{Op: "send", Kind: kind, Err: closed})
	}

	if !b.adapter.IsAvailable() {
		b.logger.Warn("request refused, host unavailable", "kind", kind)
		return messaging.FailedFuture(kind, &contracts.RequestError{Op: "send", Kind: kind, Err: contracts.ErrHostUnavailable})
	}

	raw, err := contracts.EncodePayload(payload)
	if err != nil {
		return messaging.FailedFuture(kind, &contracts.RequestError{Op: "encode", Kind: kind, Err: err})
	}

	reqOpts := messaging.RequestOptions{Timeout: b.defaultTimeout}
	for _, opt := range opts {
		opt(&reqOpts)
	}

	f, err := b.registry.Request(ctx, kind, raw, reqOpts)
	if err != nil {
		return messaging.FailedFuture(kind, err)
	}
	return f
}

// On subscribes fn to events on topic
func (b *Bridge) On(topic string, fn func(payload json.RawMessage)) (messaging.SubscriptionID, error) {
	if fn == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}
	return b.OnEvent(topic, messaging.EventHandlerFunc(func(ctx context.Context, evt messaging.Event) error {
		fn(evt.Payload)
		return nil
	}))
}

// OnEvent subscribes a full event handler to topic
func (b *Bridge) OnEvent(topic string, handler messaging.EventHandler) (messaging.SubscriptionID, error) {
	if closed := b.closedErr(); closed != nil {
		return "", closed
	}
	return b.router.Subscribe(topic, handler)
}

// Off removes the subscription with id. It reports false for unknown ids.
func (b *Bridge) Off(id messaging.SubscriptionID) bool {
	return b.router.Unsubscribe(id)
}

// Close releases the host hook, fails every pending request with a
// ClosedError carrying reason and drops all subscriptions. Calling it again
// does nothing.
func (b *Bridge) Close(reason string) {
	b.mu.Lock()
	if b.closed != nil {
		b.mu.Unlock()
		return
	}
	b.closed = &contracts.ClosedError{Reason: reason}
	b.mu.Unlock()

	b.adapter.UnsubscribeRaw()
	cancelled := b.registry.CancelAll(reason)
	removed := b.router.Clear()
	b.cancel()

	b.logger.Info("bridge closed",
		"reason", reason,
		"cancelledRequests", cancelled,
		"removedSubscriptions", removed,
	)
}

// Closed reports whether Close has been called
func (b *Bridge) Closed() bool {
	return b.closedErr() != nil
}

// HostAvailable reports whether the host channel exists right now
func (b *Bridge) HostAvailable() bool {
	return b.adapter.IsAvailable()
}

// PendingCount returns the number of requests awaiting a reply
func (b *Bridge) PendingCount() int {
	return b.registry.PendingCount()
}

// MaxPending returns the pending limit, zero when unlimited
func (b *Bridge) MaxPending() int {
	return b.registry.MaxPending()
}

// Stats is a point-in-time view of the bridge
type Stats struct {
	Pending     int
	Topics      int
	Malformed   int64
	LateReplies int64
}

// Stats returns counters kept by the bridge itself
func (b *Bridge) Stats() Stats {
	return Stats{
		Pending:     b.registry.PendingCount(),
		Topics:      len(b.router.Topics()),
		Malformed:   b.dispatcher.Malformed(),
		LateReplies: b.dispatcher.LateReplies(),
	}
}

func (b *Bridge) closedErr() *contracts.ClosedError {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Call sends a request and decodes the reply payload into T
func Call[T any](ctx context.Context, b *Bridge, kind string, payload interface{}, opts ...SendOption) (T, error) {
	var zero T

	raw, err := b.Send(ctx, kind, payload, opts...)
	if err != nil {
		return zero, err
	}

	return contracts.DecodePayload[T](raw)
}
