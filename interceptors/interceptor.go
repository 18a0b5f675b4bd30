package interceptors

import (
	"context"
	"log/slog"
	"time"

	"github.com/glimte/hostbridge/messaging"
)

// Logging logs every event handler call with its duration
func Logging(logger *slog.Logger) messaging.EventMiddleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, evt messaging.Event, next messaging.EventHandler) error {
		start := time.Now()

		logger.Debug("handling event",
			"topic", evt.Topic,
			"bytes", len(evt.Payload),
		)

		err := next.HandleEvent(ctx, evt)
		duration := time.Since(start)

		if err != nil {
			logger.Error("event handling failed",
				"topic", evt.Topic,
				"duration", duration,
				"error", err,
			)
		} else {
			logger.Debug("event handled",
				"topic", evt.Topic,
				"duration", duration,
			)
		}

		return err
	}
}

// Timeout gives each handler call a context that ends after d
func Timeout(d time.Duration) messaging.EventMiddleware {
	return func(ctx context.Context, evt messaging.Event, next messaging.EventHandler) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next.HandleEvent(ctx, evt)
	}
}

// Chain folds middleware into one, first outermost
func Chain(middleware ...messaging.EventMiddleware) messaging.EventMiddleware {
	return func(ctx context.Context, evt messaging.Event, next messaging.EventHandler) error {
		handler := next
		for i := len(middleware) - 1; i >= 0; i-- {
			mw := middleware[i]
			inner := handler
			handler = messaging.EventHandlerFunc(func(ctx context.Context, evt messaging.Event) error {
				return mw(ctx, evt, inner)
			})
		}
		return handler.HandleEvent(ctx, evt)
	}
}
