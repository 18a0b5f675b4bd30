package interceptors

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glimte/hostbridge/messaging"
)

// EventFilter decides whether an event reaches the handler
type EventFilter interface {
	// ShouldProcess returns true if the event should be handled
	ShouldProcess(ctx context.Context, evt messaging.Event) (bool, error)
}

// EventFilterFunc is a function adapter for EventFilter
type EventFilterFunc func(ctx context.Context, evt messaging.Event) (bool, error)

// ShouldProcess implements EventFilter
func (f EventFilterFunc) ShouldProcess(ctx context.Context, evt messaging.Event) (bool, error) {
	return f(ctx, evt)
}

// SkipBehavior defines what happens when an event is filtered out
type SkipBehavior int

const (
	// SkipSilently skips the event without error
	SkipSilently SkipBehavior = iota
	// SkipWithError reports the skip as a handler error
	SkipWithError
	// SkipWithLog logs that the event was skipped
	SkipWithLog
)

// Filter only lets events through that filter accepts
func Filter(filter EventFilter, skip SkipBehavior) messaging.EventMiddleware {
	return FilterWithLogger(filter, skip, slog.Default())
}

// FilterWithLogger is Filter with an explicit logger for SkipWithLog
func FilterWithLogger(filter EventFilter, skip SkipBehavior, logger *slog.Logger) messaging.EventMiddleware {
	return func(ctx context.Context, evt messaging.Event, next messaging.EventHandler) error {
		ok, err := filter.ShouldProcess(ctx, evt)
		if err != nil {
			return fmt.Errorf("filter error: %w", err)
		}

		if !ok {
			switch skip {
			case SkipWithError:
				return fmt.Errorf("event filtered: topic=%s", evt.Topic)
			case SkipWithLog:
				logger.Info("event skipped by filter", "topic", evt.Topic)
				return nil
			default:
				return nil
			}
		}

		return next.HandleEvent(ctx, evt)
	}
}

// CompositeFilter combines multiple filters with AND logic
type CompositeFilter struct {
	filters []EventFilter
}

// NewCompositeFilter creates a filter that requires all filters to pass
func NewCompositeFilter(filters ...EventFilter) *CompositeFilter {
	return &CompositeFilter{filters: filters}
}

// ShouldProcess implements EventFilter
func (f *CompositeFilter) ShouldProcess(ctx context.Context, evt messaging.Event) (bool, error) {
	for _, filter := range f.filters {
		ok, err := filter.ShouldProcess(ctx, evt)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// OrFilter combines multiple filters with OR logic
type OrFilter struct {
	filters []EventFilter
}

// NewOrFilter creates a filter that passes when any filter passes
func NewOrFilter(filters ...EventFilter) *OrFilter {
	return &OrFilter{filters: filters}
}

// ShouldProcess implements EventFilter
func (f *OrFilter) ShouldProcess(ctx context.Context, evt messaging.Event) (bool, error) {
	for _, filter := range f.filters {
		ok, err := filter.ShouldProcess(ctx, evt)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// TopicFilter lets through only the listed topics
type TopicFilter struct {
	allowed map[string]bool
}

// NewTopicFilter creates a filter that only allows specific topics
func NewTopicFilter(topics ...string) *TopicFilter {
	allowed := make(map[string]bool, len(topics))
	for _, t := range topics {
		allowed[t] = true
	}
	return &TopicFilter{allowed: allowed}
}

// ShouldProcess implements EventFilter
func (f *TopicFilter) ShouldProcess(ctx context.Context, evt messaging.Event) (bool, error) {
	return f.allowed[evt.Topic], nil
}

// NonEmptyPayloadFilter drops events whose payload is missing or null
func NonEmptyPayloadFilter() EventFilter {
	return EventFilterFunc(func(ctx context.Context, evt messaging.Event) (bool, error) {
		return len(evt.Payload) > 0 && string(evt.Payload) != "null", nil
	})
}
