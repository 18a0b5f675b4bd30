package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// SubscriptionID identifies one subscription across all topics
type SubscriptionID string

// Event is a host-initiated push notification
type Event struct {
	Topic   string
	Payload json.RawMessage
}

// EventHandler processes push events for a topic
type EventHandler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// EventHandlerFunc is a function adapter for EventHandler
type EventHandlerFunc func(ctx context.Context, evt Event) error

// HandleEvent implements EventHandler
func (f EventHandlerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// EventMiddleware wraps every handler invocation
type EventMiddleware func(ctx context.Context, evt Event, next EventHandler) error

// Subscription binds a handler to a topic
type Subscription struct {
	ID      SubscriptionID
	Topic   string
	Handler EventHandler
}

// RouterOption configures the EventRouter
type RouterOption func(*EventRouter)

// WithRouterLogger sets the logger
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *EventRouter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRouterMetrics sets the metrics collector
func WithRouterMetrics(metrics MetricsCollector) RouterOption {
	return func(r *EventRouter) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithEventMiddleware adds middleware around every handler call
func WithEventMiddleware(middleware ...EventMiddleware) RouterOption {
	return func(r *EventRouter) {
		r.middleware = append(r.middleware, middleware...)
	}
}

// EventRouter maps topics to ordered subscriber lists
type EventRouter struct {
	logger     *slog.Logger
	metrics    MetricsCollector
	middleware []EventMiddleware

	mu     sync.RWMutex
	topics map[string][]*Subscription
	index  map[SubscriptionID]string
}

// NewEventRouter creates an empty router
func NewEventRouter(opts ...RouterOption) *EventRouter {
	r := &EventRouter{
		logger:  slog.Default(),
		metrics: NoOpMetricsCollector{},
		topics:  make(map[string][]*Subscription),
		index:   make(map[SubscriptionID]string),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Subscribe appends handler to topic's subscriber list
func (r *EventRouter) Subscribe(topic string, handler EventHandler) (SubscriptionID, error) {
	if topic == "" {
		return "", fmt.Errorf("topic cannot be empty")
	}
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	sub := &Subscription{
		ID:      SubscriptionID(uuid.New().String()),
		Topic:   topic,
		Handler: handler,
	}

	r.mu.Lock()
	r.topics[topic] = append(r.topics[topic], sub)
	r.index[sub.ID] = topic
	r.mu.Unlock()

	r.logger.Debug("subscribed to topic", "topic", topic, "subscriptionId", sub.ID)
	return sub.ID, nil
}

// Unsubscribe removes exactly the subscription with id
func (r *EventRouter) Unsubscribe(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	topic, ok := r.index[id]
	if !ok {
		return false
	}
	delete(r.index, id)

	subs := r.topics[topic]
	for i, sub := range subs {
		if sub.ID != id {
			continue
		}
		// copy so in-flight dispatch snapshots stay intact
		next := make([]*Subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(r.topics, topic)
		} else {
			r.topics[topic] = next
		}
		break
	}

	r.logger.Debug("unsubscribed from topic", "topic", topic, "subscriptionId", id)
	return true
}

// Dispatch delivers payload to every subscriber of topic in subscription
// order and returns how many handlers ran. A failing or panicking handler
// is logged and skipped; the rest still receive the event. Only handlers
// that returned without error are recorded as deliveries.
func (r *EventRouter) Dispatch(ctx context.Context, topic string, payload json.RawMessage) int {
	r.mu.RLock()
	subs := r.topics[topic]
	r.mu.RUnlock()

	if len(subs) == 0 {
		r.logger.Debug("no subscribers for topic", "topic", topic)
		r.metrics.RecordDropped(DropNoRoute)
		return 0
	}

	evt := Event{Topic: topic, Payload: payload}
	delivered := 0
	for _, sub := range subs {
		if err := r.invoke(ctx, sub, evt); err != nil {
			r.metrics.RecordHandlerFailure(topic)
			r.logger.Error("event handler failed",
				"topic", topic,
				"subscriptionId", sub.ID,
				"error", err,
			)
			continue
		}
		delivered++
	}

	r.metrics.RecordEvent(topic, delivered)
	return len(subs)
}

// Clear removes every subscription and returns how many there were
func (r *EventRouter) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.index)
	r.topics = make(map[string][]*Subscription)
	r.index = make(map[SubscriptionID]string)
	return n
}

// SubscriberCount returns the number of subscribers for topic
func (r *EventRouter) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Topics returns all topics with at least one subscriber
func (r *EventRouter) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	return topics
}

func (r *EventRouter) invoke(ctx context.Context, sub *Subscription, evt Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()

	return r.buildChain(sub.Handler).HandleEvent(ctx, evt)
}

// buildChain wraps handler with middleware, first registered outermost
func (r *EventRouter) buildChain(handler EventHandler) EventHandler {
	result := handler
	for i := len(r.middleware) - 1; i >= 0; i-- {
		middleware := r.middleware[i]
		next := result
		result = EventHandlerFunc(func(ctx context.Context, evt Event) error {
			return middleware(ctx, evt, next)
		})
	}
	return result
}
