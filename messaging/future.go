package messaging

import (
	"context"
	"encoding/json"
	"sync"
)

// Future is the eventual reply to one request. It completes exactly once,
// with either a payload or an error.
type Future struct {
	kind          string
	correlationID string
	done          chan struct{}
	cancel        func() bool

	mu      sync.Mutex
	settled bool
	payload json.RawMessage
	err     error
}

func newFuture(kind, correlationID string) *Future {
	return &Future{
		kind:          kind,
		correlationID: correlationID,
		done:          make(chan struct{}),
	}
}

// FailedFuture returns a future that has already failed with err
func FailedFuture(kind string, err error) *Future {
	f := newFuture(kind, "")
	f.complete(nil, err)
	return f
}

// Kind returns the request kind
func (f *Future) Kind() string {
	return f.kind
}

// CorrelationID returns the id the request was posted with. It is empty
// when the request never reached the host.
func (f *Future) CorrelationID() string {
	return f.correlationID
}

// Done is closed once the future completes
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future completes or ctx is done. Giving up on ctx
// does not cancel the request; use Cancel for that.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking. Before completion it returns nil, nil.
func (f *Future) Result() (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payload, f.err
}

// Cancel withdraws a still-pending request. It reports false when the
// future had already completed.
func (f *Future) Cancel() bool {
	if f.cancel == nil {
		return false
	}
	return f.cancel()
}

// complete settles the future; only the first call has any effect
func (f *Future) complete(payload json.RawMessage, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.payload = payload
	f.err = err
	f.mu.Unlock()

	close(f.done)
	return true
}
