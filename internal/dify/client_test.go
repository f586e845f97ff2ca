package dify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhengjr9/claude-gateway/internal/backend"
	"github.com/zhengjr9/claude-gateway/internal/dify/difytest"
)

func newClient(url string, streaming bool) *Client {
	return NewClient(Options{
		BaseURL:   url,
		APIKey:    "app-key",
		User:      "gateway",
		Timeout:   5 * time.Second,
		Streaming: streaming,
	})
}

// collect runs one turn and returns every event up to and including the
// terminal idle or error event.
func collect(t *testing.T, s backend.Session, prompt string) []backend.RawEvent {
	t.Helper()
	var (
		mu     sync.Mutex
		events []backend.RawEvent
	)
	done := make(chan struct{})
	var once sync.Once
	off := s.On(func(ev backend.RawEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		if ev.Type == backend.EventIdle || ev.Type == backend.EventError {
			once.Do(func() { close(done) })
		}
	})
	defer off()

	require.NoError(t, s.Send(context.Background(), prompt))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not complete")
	}
	mu.Lock()
	defer mu.Unlock()
	return append([]backend.RawEvent(nil), events...)
}

func TestNewClient_URLs(t *testing.T) {
	c := newClient("https://dify.example.com/", false)
	assert.Equal(t, "https://dify.example.com/v1/chat-messages", c.chatURL)
	assert.Equal(t, "https://dify.example.com/v1", c.apiURL)

	c = newClient("https://dify.example.com/api/v1/chat-messages", false)
	assert.Equal(t, "https://dify.example.com/api/v1/chat-messages", c.chatURL)
	assert.Equal(t, "https://dify.example.com/api/v1", c.apiURL)
}

func TestSession_Blocking(t *testing.T) {
	mock := difytest.New("Hello from Dify", "msg-1", "conv-1")
	defer mock.Close()

	c := newClient(mock.URL(), false)
	s, err := c.CreateSession(context.Background(), backend.SessionConfig{Model: "dify"})
	require.NoError(t, err)

	events := collect(t, s, "User: hi")
	require.Len(t, events, 2)
	assert.Equal(t, backend.MessageEvent("Hello from Dify"), events[0])
	assert.Equal(t, backend.EventIdle, events[1].Type)

	req := mock.LastRequest()
	assert.Equal(t, "User: hi", req["query"])
	assert.Equal(t, "blocking", req["response_mode"])
	assert.Equal(t, "gateway", req["user"])
	assert.Equal(t, []string{"Bearer app-key"}, mock.AuthHeaders())

	require.NoError(t, s.Destroy(context.Background()))
	assert.Equal(t, []string{"conv-1"}, mock.Deleted())
}

func TestSession_Streaming(t *testing.T) {
	mock := difytest.New("Hello from Dify", "msg-1", "conv-2")
	defer mock.Close()

	c := newClient(mock.URL(), true)
	s, err := c.CreateSession(context.Background(), backend.SessionConfig{Streaming: true})
	require.NoError(t, err)

	events := collect(t, s, "p")
	require.Len(t, events, 4)
	assert.Equal(t, backend.DeltaEvent("Hello"), events[0])
	assert.Equal(t, backend.DeltaEvent(" from"), events[1])
	assert.Equal(t, backend.DeltaEvent(" Dify"), events[2])
	assert.Equal(t, backend.EventIdle, events[3].Type)
	assert.Equal(t, "streaming", mock.LastRequest()["response_mode"])

	require.NoError(t, s.Destroy(context.Background()))
	assert.Equal(t, []string{"conv-2"}, mock.Deleted())
}

func TestSession_StreamErrorEvent(t *testing.T) {
	mock := difytest.New("a b c", "msg-1", "conv-3")
	mock.StreamError = "quota exceeded"
	defer mock.Close()

	s, err := newClient(mock.URL(), true).CreateSession(context.Background(), backend.SessionConfig{Streaming: true})
	require.NoError(t, err)
	defer s.Destroy(context.Background())

	events := collect(t, s, "p")
	require.Len(t, events, 2)
	assert.Equal(t, backend.DeltaEvent("a"), events[0])
	assert.Equal(t, backend.EventError, events[1].Type)
	assert.Equal(t, "quota exceeded", events[1].Data["message"])
	assert.Equal(t, http.StatusTooManyRequests, events[1].Data["statusCode"])
}

func TestSession_StreamWithoutMessageEnd(t *testing.T) {
	mock := difytest.New("only words", "msg-1", "conv-4")
	mock.OmitMessageEnd = true
	defer mock.Close()

	s, err := newClient(mock.URL(), true).CreateSession(context.Background(), backend.SessionConfig{Streaming: true})
	require.NoError(t, err)
	defer s.Destroy(context.Background())

	events := collect(t, s, "p")
	require.Len(t, events, 3)
	assert.Equal(t, backend.EventIdle, events[2].Type)
}

func TestSession_UpstreamStatus(t *testing.T) {
	mock := difytest.New("", "", "")
	mock.FailStatus = http.StatusUnauthorized
	mock.FailMessage = "Access token is invalid"
	defer mock.Close()

	t.Run("streaming send fails synchronously", func(t *testing.T) {
		s, err := newClient(mock.URL(), true).CreateSession(context.Background(), backend.SessionConfig{Streaming: true})
		require.NoError(t, err)
		defer s.Destroy(context.Background())

		err = s.Send(context.Background(), "p")
		var be *backend.Error
		require.True(t, errors.As(err, &be))
		assert.Equal(t, http.StatusUnauthorized, be.Status)
		assert.Equal(t, "dify 401: Access token is invalid", be.Message)
	})

	t.Run("blocking failure is an error event", func(t *testing.T) {
		s, err := newClient(mock.URL(), false).CreateSession(context.Background(), backend.SessionConfig{})
		require.NoError(t, err)
		defer s.Destroy(context.Background())

		events := collect(t, s, "p")
		require.Len(t, events, 1)
		assert.Equal(t, backend.EventError, events[0].Type)
		assert.Equal(t, http.StatusUnauthorized, events[0].Data["statusCode"])
	})
}

func TestCreateSession_StreamingDisabled(t *testing.T) {
	_, err := newClient("http://unused", false).CreateSession(context.Background(), backend.SessionConfig{Streaming: true})
	require.Error(t, err)
	assert.Contains(t, strings.ToLower(err.Error()), "stream")
}

func TestDestroy_WithoutConversation(t *testing.T) {
	mock := difytest.New("x", "m", "c")
	defer mock.Close()

	s, err := newClient(mock.URL(), false).CreateSession(context.Background(), backend.SessionConfig{})
	require.NoError(t, err)
	require.NoError(t, s.Destroy(context.Background()))
	assert.Empty(t, mock.Deleted())
}

func TestReadStream(t *testing.T) {
	raw := "event: ping\n\n" +
		"data: {\"event\":\"message\",\"answer\":\"hi\",\"conversation_id\":\"c\"}\n\n" +
		"data: [DONE]\n\n" +
		"data: {not json}\n\n"

	var got []StreamEvent
	for ev := range ReadStream(strings.NewReader(raw)) {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "message", got[0].Event)
	assert.Equal(t, "hi", got[0].Answer)
	assert.Error(t, got[1].Err)
}
