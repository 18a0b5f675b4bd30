package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glimte/hostbridge/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func waitFuture(t *testing.T, f *Future) (json.RawMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	payload, err := f.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future did not complete")
	return payload, err
}

func TestCorrelationRegistryRequest(t *testing.T) {
	t.Run("Request posts envelope with monotonic correlation ids", func(t *testing.T) {
		poster := &recordingPoster{}
		r := NewCorrelationRegistry(poster)

		f1, err := r.Request(context.Background(), "movies", json.RawMessage(`{}`), RequestOptions{})
		require.NoError(t, err)
		f2, err := r.Request(context.Background(), "navigate", json.RawMessage(`{"id":"42"}`), RequestOptions{})
		require.NoError(t, err)

		assert.Equal(t, "1", f1.CorrelationID())
		assert.Equal(t, "2", f2.CorrelationID())
		assert.Equal(t, "navigate", f2.Kind())

		posted := poster.envelopes()
		require.Len(t, posted, 2)
		assert.Equal(t, contracts.Envelope{Kind: "movies", CorrelationID: "1", Payload: json.RawMessage(`{}`)}, posted[0])
		assert.Equal(t, "2", posted[1].CorrelationID)
		assert.Equal(t, 2, r.PendingCount())
	})

	t.Run("Request rejects empty kind", func(t *testing.T) {
		r := NewCorrelationRegistry(&recordingPoster{})

		_, err := r.Request(context.Background(), "", nil, RequestOptions{})

		assert.Error(t, err)
		assert.Equal(t, 0, r.PendingCount())
	})

	t.Run("Request removes the entry when posting fails", func(t *testing.T) {
		poster := &mockPoster{}
		cause := errors.New("pipe closed")
		poster.On("PostRaw", mock.Anything, mock.MatchedBy(func(env contracts.Envelope) bool {
			return env.Kind == "movies" && env.CorrelationID == "1"
		})).Return(cause)
		metrics := newCountingMetrics()
		r := NewCorrelationRegistry(poster, WithRegistryMetrics(metrics))

		f, err := r.Request(context.Background(), "movies", nil, RequestOptions{})

		assert.Nil(t, f)
		assert.ErrorIs(t, err, cause)
		var reqErr *contracts.RequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, "post", reqErr.Op)
		assert.Equal(t, 0, r.PendingCount())
		assert.Equal(t, 1, metrics.outcome(OutcomePostFailed))
		poster.AssertExpectations(t)
	})

	t.Run("Request enforces the pending limit", func(t *testing.T) {
		r := NewCorrelationRegistry(&recordingPoster{}, WithMaxPending(1))

		_, err := r.Request(context.Background(), "movies", nil, RequestOptions{})
		require.NoError(t, err)
		_, err = r.Request(context.Background(), "movies", nil, RequestOptions{})

		assert.ErrorIs(t, err, contracts.ErrTooManyPending)
		assert.Equal(t, 1, r.PendingCount())
		assert.Equal(t, 1, r.MaxPending())
	})
}

func TestCorrelationRegistryResolve(t *testing.T) {
	t.Run("Resolve fulfils the matching future", func(t *testing.T) {
		r := NewCorrelationRegistry(&recordingPoster{})
		f, err := r.Request(context.Background(), "movies", nil, RequestOptions{})
		require.NoError(t, err)

		assert.True(t, r.Resolve(f.CorrelationID(), json.RawMessage(`{"movies":[]}`)))

		payload, err := waitFuture(t, f)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"movies":[]}`, string(payload))
		assert.Equal(t, 0, r.PendingCount())
	})

	t.Run("Resolve of unknown id is a no-op", func(t *testing.T) {
		r := NewCorrelationRegistry(&recordingPoster{})
		f, err := r.Request(context.Background(), "movies", nil, RequestOptions{})
		require.NoError(t, err)

		assert.False(t, r.Resolve("999", json.RawMessage(`1`)))
		assert.False(t, r.Resolve("", json.RawMessage(`1`)))

		assert.True(t, r.IsPending(f.CorrelationID()))
		select {
		case <-f.Done():
			t.Fatal("unrelated future completed")
		default:
		}
	})

	t.Run("second Resolve of the same id is a no-op", func(t *testing.T) {
		metrics := newCountingMetrics()
		r := NewCorrelationRegistry(&recordingPoster{}, WithRegistryMetrics(metrics))
		f, err := r.Request(context.Background(), "movies", nil, RequestOptions{})
		require.NoError(t, err)

		assert.True(t, r.Resolve(f.CorrelationID(), json.RawMessage(`"first"`)))
		assert.False(t, r.Resolve(f.CorrelationID(), json.RawMessage(`"second"`)))

		payload, _ := waitFuture(t, f)
		assert.Equal(t, `"first"`, string(payload))
		assert.Equal(t, 1, metrics.outcome(OutcomeResolved))
	})

	t.Run("Reject fails the future with a remote error", func(t *testing.T) {
		r := NewCorrelationRegistry(&recordingPoster{})
		f, err := r.Request(context.Background(), "navigate", nil, RequestOptions{})
		require.NoError(t, err)

		assert.True(t, r.Reject(f.CorrelationID(), "Invalid route format"))
		assert.False(t, r.Reject(f.CorrelationID(), "again"))

		_, err = waitFuture(t, f)
		var remote *contracts.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, "Invalid route format", remote.Message)
		assert.Equal(t, "navigate", remote.Kind)
	})

	t.Run("concurrent requests resolved in reverse order never cross-wire", func(t *testing.T) {
		const n = 50
		r := NewCorrelationRegistry(&recordingPoster{})
		futures := make([]*Future, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				f, err := r.Request(context.Background(), "movies", nil, RequestOptions{})
				assert.NoError(t, err)
				futures[i] = f
			}(i)
		}
		wg.Wait()

		for i := n - 1; i >= 0; i-- {
			id := futures[i].CorrelationID()
			require.True(t, r.Resolve(id, json.RawMessage(fmt.Sprintf(`"reply-%s"`, id))))
		}

		for _, f := range futures {
			payload, err := waitFuture(t, f)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf(`"reply-%s"`, f.CorrelationID()), string(payload))
		}
	})
}

func TestCorrelationRegistryTimeout(t *testing.T) {
	t.Run("timeout fails the future and removes the entry", func(t *testing.T) {
		metrics := newCountingMetrics()
		r := NewCorrelationRegistry(&recordingPoster{}, WithRegistryMetrics(metrics))
		start := time.Now()

		f, err := r.Request(context.Background(), "navigate", nil, RequestOptions{Timeout: 30 * time.Millisecond})
		require.NoError(t, err)

		_, err = waitFuture(t, f)
		assert.ErrorIs(t, err, contracts.ErrRequestTimedOut)
		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.False(t, r.IsPending(f.CorrelationID()))
		assert.True(t, r.Issued(f.CorrelationID()))

		assert.False(t, r.Resolve(f.CorrelationID(), json.RawMessage(`"late"`)))
		_, err = f.Result()
		assert.ErrorIs(t, err, contracts.ErrRequestTimedOut)
		assert.Equal(t, 1, metrics.outcome(OutcomeTimedOut))
	})

	t.Run("slow failing post is counted as a post failure, not a timeout", func(t *testing.T) {
		poster := &mockPoster{}
		cause := errors.New("pipe closed")
		poster.On("PostRaw", mock.Anything, mock.Anything).After(50 * time.Millisecond).Return(cause)
		metrics := newCountingMetrics()
		r := NewCorrelationRegistry(poster, WithRegistryMetrics(metrics))

		f, err := r.Request(context.Background(), "movies", nil, RequestOptions{Timeout: 10 * time.Millisecond})

		assert.Nil(t, f)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, 1, metrics.outcome(OutcomePostFailed))
		assert.Equal(t, 0, metrics.outcome(OutcomeTimedOut))
	})

	t.Run("deadline starts once the post succeeds", func(t *testing.T) {
		poster := &mockPoster{}
		poster.On("PostRaw", mock.Anything, mock.Anything).After(40 * time.Millisecond).Return(nil)
		r := NewCorrelationRegistry(poster)

		f, err := r.Request(context.Background(), "movies", nil, RequestOptions{Timeout: 20 * time.Millisecond})
		require.NoError(t, err)
		assert.True(t, r.IsPending(f.CorrelationID()))

		_, err = waitFuture(t, f)
		assert.ErrorIs(t, err, contracts.ErrRequestTimedOut)
	})

	t.Run("reply before timeout disarms the timer", func(t *testing.T) {
		metrics := newCountingMetrics()
		r := NewCorrelationRegistry(&recordingPoster{}, WithRegistryMetrics(metrics))
		f, err := r.Request(context.Background(), "movies", nil, RequestOptions{Timeout: 20 * time.Millisecond})
		require.NoError(t, err)

		require.True(t, r.Resolve(f.CorrelationID(), json.RawMessage(`1`)))
		time.Sleep(40 * time.Millisecond)

		_, err = f.Result()
		assert.NoError(t, err)
		assert.Equal(t, 0, metrics.outcome(OutcomeTimedOut))
	})
}

func TestCorrelationRegistryCancel(t *testing.T) {
	t.Run("Cancel withdraws one request", func(t *testing.T) {
		r := NewCorrelationRegistry(&recordingPoster{})
		f1, _ := r.Request(context.Background(), "movies", nil, RequestOptions{})
		f2, _ := r.Request(context.Background(), "movies", nil, RequestOptions{})

		assert.True(t, f1.Cancel())
		assert.False(t, f1.Cancel())

		_, err := waitFuture(t, f1)
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, r.IsPending(f2.CorrelationID()))
	})

	t.Run("CancelAll rejects every pending future and closes the registry", func(t *testing.T) {
		r := NewCorrelationRegistry(&recordingPoster{})
		f1, _ := r.Request(context.Background(), "movies", nil, RequestOptions{Timeout: time.Minute})
		f2, _ := r.Request(context.Background(), "navigate", nil, RequestOptions{})

		assert.Equal(t, 2, r.CancelAll("shutdown"))

		for _, f := range []*Future{f1, f2} {
			_, err := waitFuture(t, f)
			assert.ErrorIs(t, err, contracts.ErrBridgeClosed)
			var closed *contracts.ClosedError
			require.ErrorAs(t, err, &closed)
			assert.Equal(t, "shutdown", closed.Reason)
		}

		_, err := r.Request(context.Background(), "movies", nil, RequestOptions{})
		assert.ErrorIs(t, err, contracts.ErrBridgeClosed)
		assert.Equal(t, 0, r.CancelAll("again"))
	})
}

func TestCorrelationRegistryFailPending(t *testing.T) {
	t.Run("FailPending rejects pending futures and keeps the registry open", func(t *testing.T) {
		metrics := newCountingMetrics()
		r := NewCorrelationRegistry(&recordingPoster{}, WithRegistryMetrics(metrics))
		f1, _ := r.Request(context.Background(), "movies", nil, RequestOptions{})
		f2, _ := r.Request(context.Background(), "navigate", nil, RequestOptions{Timeout: time.Minute})

		assert.Equal(t, 2, r.FailPending(contracts.ErrHostUnavailable))

		for _, f := range []*Future{f1, f2} {
			_, err := waitFuture(t, f)
			assert.ErrorIs(t, err, contracts.ErrHostUnavailable)
		}
		assert.Equal(t, 0, r.PendingCount())
		assert.Equal(t, 2, metrics.outcome(OutcomeHostLost))

		f3, err := r.Request(context.Background(), "movies", nil, RequestOptions{})
		require.NoError(t, err)
		assert.Equal(t, "3", f3.CorrelationID())
		assert.Equal(t, 1, r.FailPending(contracts.ErrHostUnavailable))
	})
}

func TestCorrelationRegistryIssued(t *testing.T) {
	r := NewCorrelationRegistry(&recordingPoster{})
	_, _ = r.Request(context.Background(), "movies", nil, RequestOptions{})
	_, _ = r.Request(context.Background(), "movies", nil, RequestOptions{})

	assert.True(t, r.Issued("1"))
	assert.True(t, r.Issued("2"))
	assert.False(t, r.Issued("3"))
	assert.False(t, r.Issued("0"))
	assert.False(t, r.Issued("01"))
	assert.False(t, r.Issued("msg_1"))
	assert.False(t, r.Issued(""))
}

func TestFailedFuture(t *testing.T) {
	cause := errors.New("no host")
	f := FailedFuture("movies", cause)

	payload, err := f.Wait(context.Background())

	assert.Nil(t, payload)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, f.CorrelationID())
	assert.False(t, f.Cancel())
}

func TestFutureWaitHonoursContext(t *testing.T) {
	r := NewCorrelationRegistry(&recordingPoster{})
	f, err := r.Request(context.Background(), "movies", nil, RequestOptions{})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = f.Wait(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, r.IsPending(f.CorrelationID()))
}
