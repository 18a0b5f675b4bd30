package hosttest

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glimte/hostbridge/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu   sync.Mutex
	envs []contracts.Envelope
}

func (i *inbox) handle(data []byte) {
	env, err := contracts.DecodeEnvelope(data)
	if err != nil {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.envs = append(i.envs, env)
}

func (i *inbox) all() []contracts.Envelope {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]contracts.Envelope(nil), i.envs...)
}

func post(t *testing.T, h *Host, kind, id string, payload interface{}) error {
	t.Helper()
	env, err := contracts.NewEnvelope(kind, id, payload)
	require.NoError(t, err)
	data, err := env.Marshal()
	require.NoError(t, err)
	return h.PostMessage(data)
}

func TestHost(t *testing.T) {
	t.Run("responder answers with the request correlation id", func(t *testing.T) {
		h := New()
		in := &inbox{}
		require.NoError(t, h.SetMessageHandler(in.handle))
		h.Handle("movies", func(req contracts.Envelope) (interface{}, error) {
			return map[string][]string{"movies": {"Heat"}}, nil
		})

		require.NoError(t, post(t, h, "movies", "1", struct{}{}))
		h.Drain()

		got := in.all()
		require.Len(t, got, 1)
		assert.Equal(t, "1", got[0].CorrelationID)
		assert.JSONEq(t, `{"movies":["Heat"]}`, string(got[0].Payload))
		assert.Len(t, h.Posted(), 1)
	})

	t.Run("responder error becomes an error reply", func(t *testing.T) {
		h := New()
		in := &inbox{}
		require.NoError(t, h.SetMessageHandler(in.handle))
		h.Handle("navigate", func(req contracts.Envelope) (interface{}, error) {
			return nil, errors.New("Invalid route format")
		})

		require.NoError(t, post(t, h, "navigate", "4", nil))
		h.Drain()

		got := in.all()
		require.Len(t, got, 1)
		assert.Equal(t, "Invalid route format", got[0].Error)
	})

	t.Run("ErrNoReply swallows the request", func(t *testing.T) {
		h := New()
		in := &inbox{}
		require.NoError(t, h.SetMessageHandler(in.handle))
		h.Handle("void", func(req contracts.Envelope) (interface{}, error) { return nil, ErrNoReply })

		require.NoError(t, post(t, h, "void", "1", nil))
		h.Drain()

		assert.Empty(t, in.all())
	})

	t.Run("HandleAfter delays the reply", func(t *testing.T) {
		h := New()
		in := &inbox{}
		require.NoError(t, h.SetMessageHandler(in.handle))
		h.HandleAfter("slow", 30*time.Millisecond, func(req contracts.Envelope) (interface{}, error) { return 1, nil })
		start := time.Now()

		require.NoError(t, post(t, h, "slow", "1", nil))
		assert.Empty(t, in.all())
		h.Drain()

		assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
		assert.Len(t, in.all(), 1)
	})

	t.Run("unavailable host refuses posts", func(t *testing.T) {
		h := New()
		h.SetAvailable(false)

		err := post(t, h, "movies", "1", nil)

		assert.ErrorIs(t, err, contracts.ErrHostUnavailable)
		assert.False(t, h.Available())
		assert.Empty(t, h.Posted())
	})

	t.Run("SetPostError fails posts", func(t *testing.T) {
		h := New()
		cause := errors.New("pipe broken")
		h.SetPostError(cause)

		assert.ErrorIs(t, post(t, h, "movies", "1", nil), cause)

		h.SetPostError(nil)
		assert.NoError(t, post(t, h, "movies", "2", nil))
	})

	t.Run("Push and Fail deliver synchronously", func(t *testing.T) {
		h := New()
		in := &inbox{}
		require.NoError(t, h.SetMessageHandler(in.handle))

		require.NoError(t, h.Push("movieSelected", map[string]string{"id": "7"}))
		require.NoError(t, h.Fail("navigate", "3", "nope"))

		got := in.all()
		require.Len(t, got, 2)
		assert.True(t, got[0].IsEvent())
		assert.Equal(t, json.RawMessage(`{"id":"7"}`), got[0].Payload)
		assert.Equal(t, "nope", got[1].Error)
	})

	t.Run("second handler is refused while one is installed", func(t *testing.T) {
		h := New()
		first, second := &inbox{}, &inbox{}
		require.NoError(t, h.SetMessageHandler(first.handle))

		err := h.SetMessageHandler(second.handle)
		require.NoError(t, h.Push("movieSelected", 1))

		assert.ErrorIs(t, err, contracts.ErrDuplicateSubscription)
		assert.Len(t, first.all(), 1)
		assert.Empty(t, second.all())

		require.NoError(t, h.SetMessageHandler(nil))
		assert.NoError(t, h.SetMessageHandler(second.handle))
	})

	t.Run("DeliverRaw without handler reports false", func(t *testing.T) {
		h := New()

		assert.False(t, h.HasHandler())
		assert.False(t, h.DeliverRaw([]byte(`{}`)))
	})
}
