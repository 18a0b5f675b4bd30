// Package bridge provides request/response calls and push-event subscriptions
// over an embedding host's raw message channel.
//
// The host exposes a single primitive to post a message and a single slot for
// receiving them. The bridge installs one inbound hook on that slot, stamps
// every request with a correlation id and routes each inbound message either
// to the waiting request or to the subscribers of its topic.
//
// Basic usage:
//
//	adapter := transport.NewAdapter(host)
//	b, err := bridge.New(adapter, bridge.WithDefaultTimeout(5*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close("shutdown")
//
//	movies, err := bridge.Call[MovieList](ctx, b, "movies", nil)
//
//	id, _ := b.On("movieSelected", func(payload json.RawMessage) {
//	    // ...
//	})
//	defer b.Off(id)
//
// Requests fail with contracts.ErrHostUnavailable when no host is present,
// contracts.ErrRequestTimedOut when the reply is too slow, and a
// *contracts.ClosedError once the bridge is closed. A reply carrying an error
// field fails with *contracts.RemoteError.
package bridge
