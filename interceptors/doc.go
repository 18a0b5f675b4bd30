// Package interceptors provides reusable event middleware for the bridge's
// event router.
//
// Each constructor returns a messaging.EventMiddleware; pass them to
// bridge.WithEventMiddleware or messaging.WithEventMiddleware. Middleware runs
// in registration order around every subscriber call:
//
//	b, err := bridge.New(adapter, bridge.WithEventMiddleware(
//		interceptors.Logging(logger),
//		interceptors.Filter(interceptors.NewTopicFilter("movieSelected"), interceptors.SkipWithLog),
//	))
package interceptors
