package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhengjr9/claude-gateway/internal/backend"
	"github.com/zhengjr9/claude-gateway/internal/backend/backendtest"
	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
)

func newManager(c backend.Client) *Manager {
	return NewManager(backend.Static(c), "default-model", nil, nil)
}

func TestOpen_PassesConfig(t *testing.T) {
	fake := &backendtest.Client{}
	m := newManager(fake)

	h, err := m.Open(context.Background(), Options{System: "be brief", Streaming: true, MaxTokens: 64})
	require.NoError(t, err)
	defer h.Close(context.Background())

	cfgs := fake.Configs()
	require.Len(t, cfgs, 1)
	assert.Equal(t, backend.SessionConfig{
		Model:         "default-model",
		SystemMessage: "be brief",
		Streaming:     true,
		MaxTokens:     64,
	}, cfgs[0])
	assert.Equal(t, "fake-1", h.ID())
}

func TestOpen_StreamingRejected(t *testing.T) {
	fake := &backendtest.Client{CreateErr: errors.New("Model does not support STREAMING responses")}
	m := newManager(fake)

	_, err := m.Open(context.Background(), Options{Streaming: true})
	require.Error(t, err)

	got := apierrors.Classify(err)
	assert.Equal(t, apierrors.Mapped{
		Status:  http.StatusBadRequest,
		Type:    apierrors.InvalidRequest,
		Message: StreamingUnsupportedMessage,
	}, got)
}

func TestOpen_StreamMarkerIgnoredWhenNotStreaming(t *testing.T) {
	fake := &backendtest.Client{CreateErr: errors.New("stream reset by peer")}
	m := newManager(fake)

	_, err := m.Open(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, apierrors.Mapped{Status: 500, Type: apierrors.API, Message: "stream reset by peer"}, apierrors.Classify(err))
}

func TestOpen_UnavailableKeepsStatus(t *testing.T) {
	fake := &backendtest.Client{CreateErr: &backend.Error{Status: 401, Message: "bad credentials"}}
	m := newManager(fake)

	_, err := m.Open(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, apierrors.Mapped{Status: 401, Type: apierrors.Authentication, Message: "bad credentials"}, apierrors.Classify(err))
}

func TestOpen_ClientStartFailure(t *testing.T) {
	m := NewManager(backend.NewShared(func(context.Context) (backend.Client, error) {
		return nil, errors.New("no credentials")
	}), "x", nil, nil)

	_, err := m.Open(context.Background(), Options{})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "no credentials")
}

func TestSendAndAwait_ReturnsFinalMessage(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{Final: "Hello!"}}
	h, err := newManager(fake).Open(context.Background(), Options{})
	require.NoError(t, err)

	text, err := h.SendAndAwait(context.Background(), "User: hi")
	require.NoError(t, err)
	require.NoError(t, h.Close(context.Background()))

	assert.Equal(t, "Hello!", text)
	assert.Equal(t, []string{"User: hi"}, fake.Sessions()[0].Prompts())
	assert.Equal(t, 1, fake.TotalDestroys())
}

func TestSendAndAwait_FallsBackToDeltas(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{Deltas: []string{"a", "b"}}}
	h, err := newManager(fake).Open(context.Background(), Options{Streaming: true})
	require.NoError(t, err)
	defer h.Close(context.Background())

	text, err := h.SendAndAwait(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestSendAndAwait_BackendError(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{Err: &backend.Error{Status: 429, Message: "slow down"}}}
	h, err := newManager(fake).Open(context.Background(), Options{})
	require.NoError(t, err)
	defer h.Close(context.Background())

	text, err := h.SendAndAwait(context.Background(), "p")
	require.Error(t, err)
	assert.Empty(t, text)
	assert.Equal(t, apierrors.Mapped{Status: 429, Type: apierrors.RateLimit, Message: "slow down"}, apierrors.Classify(err))
}

func TestSendAndAwait_SendError(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{SendErr: errors.New("pipe closed")}}
	h, err := newManager(fake).Open(context.Background(), Options{})
	require.NoError(t, err)
	defer h.Close(context.Background())

	_, err = h.SendAndAwait(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipe closed")
}

func TestSendWithDeltas_OrderAndAccumulation(t *testing.T) {
	deltas := []string{"Hel", "lo", ", ", "world", "!"}
	fake := &backendtest.Client{Script: backendtest.Script{Deltas: deltas, Noise: true}}
	h, err := newManager(fake).Open(context.Background(), Options{Streaming: true})
	require.NoError(t, err)
	defer h.Close(context.Background())

	var seen []string
	text, err := h.SendWithDeltas(context.Background(), "p", func(d string) error {
		seen = append(seen, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, deltas, seen)
	assert.Equal(t, "Hello, world!", text)
}

func TestSendWithDeltas_ErrorDiscardsPartialText(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{
		Deltas: []string{"one", "two"},
		Err:    errors.New("backend exploded"),
	}}
	h, err := newManager(fake).Open(context.Background(), Options{Streaming: true})
	require.NoError(t, err)
	defer h.Close(context.Background())

	var seen []string
	text, err := h.SendWithDeltas(context.Background(), "p", func(d string) error {
		seen = append(seen, d)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, "backend exploded", err.Error())
	assert.Empty(t, text)
	assert.Equal(t, []string{"one", "two"}, seen)
}

func TestSendWithDeltas_CallbackErrorAborts(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{Deltas: []string{"a", "b", "c"}}}
	h, err := newManager(fake).Open(context.Background(), Options{Streaming: true})
	require.NoError(t, err)

	gone := errors.New("client went away")
	calls := 0
	_, err = h.SendWithDeltas(context.Background(), "p", func(string) error {
		calls++
		return gone
	})
	require.ErrorIs(t, err, gone)
	assert.Equal(t, 1, calls)

	// Destroy must not deadlock on the backend goroutine still emitting.
	require.NoError(t, h.Close(context.Background()))
	assert.Equal(t, 1, fake.TotalDestroys())
}

func TestSendWithDeltas_ContextCancelled(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{Deltas: []string{"x"}, Hang: true}}
	h, err := newManager(fake).Open(context.Background(), Options{Streaming: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = h.SendWithDeltas(ctx, "p", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, h.Close(ctx))
	assert.Equal(t, 1, fake.TotalDestroys())
}

func TestClose_Once(t *testing.T) {
	fake := &backendtest.Client{}
	h, err := newManager(fake).Open(context.Background(), Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Close(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fake.TotalDestroys())
}

func TestListModels(t *testing.T) {
	t.Run("lister", func(t *testing.T) {
		c := &backendtest.ListingClient{
			Client: &backendtest.Client{},
			Models: []backend.Model{{ID: "m1", Name: "Model One"}},
		}
		got, err := newManager(c).ListModels(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []backend.Model{{ID: "m1", Name: "Model One"}}, got)
	})

	t.Run("lister error", func(t *testing.T) {
		c := &backendtest.ListingClient{Client: &backendtest.Client{}, ListErr: errors.New("nope")}
		_, err := newManager(c).ListModels(context.Background())
		require.Error(t, err)
	})

	t.Run("catalog", func(t *testing.T) {
		m := NewManager(backend.Static(&backendtest.Client{}), "d", []backend.Model{{ID: "c1", Name: "C1"}}, nil)
		got, err := m.ListModels(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []backend.Model{{ID: "c1", Name: "C1"}}, got)
	})

	t.Run("fallback", func(t *testing.T) {
		got, err := newManager(&backendtest.Client{}).ListModels(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []backend.Model{{ID: "default-model", Name: "generic"}}, got)
	})
}
