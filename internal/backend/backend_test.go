package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_OrderAndUnsubscribe(t *testing.T) {
	var e Emitter
	var got []string

	offA := e.On(func(ev RawEvent) { got = append(got, "a:"+ev.Type) })
	e.On(func(ev RawEvent) { got = append(got, "b:"+ev.Type) })

	e.Emit(IdleEvent())
	offA()
	offA()
	e.Emit(DeltaEvent("x"))

	assert.Equal(t, []string{"a:session.idle", "b:session.idle", "b:assistant.message_delta"}, got)
}

func TestEmitter_HandlerMayUnsubscribeItself(t *testing.T) {
	var e Emitter
	calls := 0
	var off func()
	off = e.On(func(RawEvent) {
		calls++
		off()
	})
	e.Emit(IdleEvent())
	e.Emit(IdleEvent())
	assert.Equal(t, 1, calls)
}

func TestErrorEvent_KeepsStatus(t *testing.T) {
	ev := ErrorEvent(fmt.Errorf("wrapped: %w", &Error{Status: 429, Message: "slow down"}))
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "wrapped: slow down", ev.Data["message"])
	assert.Equal(t, 429, ev.Data["statusCode"])

	plain := ErrorEvent(errors.New("nope"))
	_, has := plain.Data["statusCode"]
	assert.False(t, has)
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "backend returned status 503", (&Error{Status: 503}).Error())
	assert.Equal(t, 503, (&Error{Status: 503}).StatusCode())
}

type nopClient struct{}

func (nopClient) CreateSession(context.Context, SessionConfig) (Session, error) { return nil, nil }

func TestShared_CreatesOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	s := NewShared(func(context.Context) (Client, error) {
		calls.Add(1)
		return nopClient{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Get(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, c)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestShared_FailureIsNotCached(t *testing.T) {
	fail := true
	s := NewShared(func(context.Context) (Client, error) {
		if fail {
			return nil, errors.New("cli not found")
		}
		return nopClient{}, nil
	})

	_, err := s.Get(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cli not found")

	fail = false
	c, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestShared_Unconfigured(t *testing.T) {
	_, err := (&Shared{}).Get(context.Background())
	assert.Error(t, err)
}

func TestParseCatalog(t *testing.T) {
	models, err := ParseCatalog([]byte(`
models:
  - id: claude-sonnet-4.5
    display_name: Claude Sonnet 4.5
  - id: gpt-5
`))
	require.NoError(t, err)
	assert.Equal(t, []Model{
		{ID: "claude-sonnet-4.5", Name: "Claude Sonnet 4.5"},
		{ID: "gpt-5", Name: "gpt-5"},
	}, models)
}

func TestParseCatalog_Invalid(t *testing.T) {
	_, err := ParseCatalog([]byte("models:\n  - display_name: nameless\n"))
	assert.ErrorContains(t, err, "id is required")

	_, err = ParseCatalog([]byte("models: [oops"))
	assert.Error(t, err)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models:\n  - id: m1\n"), 0o600))

	models, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []Model{{ID: "m1", Name: "m1"}}, models)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
