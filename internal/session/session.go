// Package session drives backend sessions on behalf of a single request:
// it opens them, runs one turn to completion and guarantees destruction.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/zhengjr9/claude-gateway/internal/backend"
	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/metrics"
)

// StreamingUnsupportedMessage is returned when a streaming session cannot be opened
// because the backend does not support streaming.
const StreamingUnsupportedMessage = "Streaming is unsupported by the backend"

var streamMarker = regexp.MustCompile(`(?i)stream`)

const destroyTimeout = 10 * time.Second

// UnavailableError reports that the backend refused to open a session.
// The underlying error, including any status it carries, is preserved.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string { return e.Err.Error() }
func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports whether target is apierrors.ErrBackendUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == apierrors.ErrBackendUnavailable
}

// Options describes the session a request needs.
type Options struct {
	Model     string
	System    string
	Streaming bool
	MaxTokens int
}

// Manager opens sessions on the shared backend client.
type Manager struct {
	clients      *backend.Shared
	metrics      *metrics.Collector
	catalog      []backend.Model
	defaultModel string
}

// NewManager returns a Manager. catalog may be nil; m may be nil.
func NewManager(clients *backend.Shared, defaultModel string, catalog []backend.Model, m *metrics.Collector) *Manager {
	return &Manager{
		clients:      clients,
		metrics:      m,
		catalog:      catalog,
		defaultModel: defaultModel,
	}
}

// DefaultModel is used when a request names no model.
func (m *Manager) DefaultModel() string { return m.defaultModel }

// Open creates a backend session. The returned Handle must be closed.
func (m *Manager) Open(ctx context.Context, opts Options) (*Handle, error) {
	if opts.Model == "" {
		opts.Model = m.defaultModel
	}

	client, err := m.clients.Get(ctx)
	if err != nil {
		m.metrics.SessionOpened(err)
		return nil, &UnavailableError{Err: err}
	}

	sess, err := client.CreateSession(ctx, backend.SessionConfig{
		Model:         opts.Model,
		SystemMessage: opts.System,
		Streaming:     opts.Streaming,
		MaxTokens:     opts.MaxTokens,
	})
	m.metrics.SessionOpened(err)
	if err != nil {
		if opts.Streaming && streamMarker.MatchString(err.Error()) {
			slog.Warn("backend rejected streaming session", "model", opts.Model, "error", err)
			return nil, apierrors.InvalidRequestf(StreamingUnsupportedMessage)
		}
		return nil, &UnavailableError{Err: err}
	}

	slog.Debug("session opened", "session", sess.ID(), "model", opts.Model, "streaming", opts.Streaming)
	return &Handle{sess: sess, metrics: m.metrics}, nil
}

// ListModels returns the backend's models, falling back to the configured
// catalog and finally to a single generic entry for the default model.
func (m *Manager) ListModels(ctx context.Context) ([]backend.Model, error) {
	client, err := m.clients.Get(ctx)
	if err != nil {
		return nil, err
	}
	if lister, ok := client.(backend.ModelLister); ok {
		models, err := lister.ListModels(ctx)
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		return models, nil
	}
	if len(m.catalog) > 0 {
		return append([]backend.Model(nil), m.catalog...), nil
	}
	return []backend.Model{{ID: m.defaultModel, Name: "generic"}}, nil
}

// Handle owns one backend session.
type Handle struct {
	sess    backend.Session
	metrics *metrics.Collector

	closeOnce sync.Once
	closeErr  error
}

// ID returns the backend session id.
func (h *Handle) ID() string { return h.sess.ID() }

// Close destroys the session. Only the first call reaches the backend.
// Destruction is not bound to the caller's context so a departed client
// still releases its session.
func (h *Handle) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), destroyTimeout)
		defer cancel()
		h.closeErr = h.sess.Destroy(dctx)
		h.metrics.SessionClosed()
		if h.closeErr != nil {
			slog.Warn("destroy session failed", "session", h.sess.ID(), "error", h.closeErr)
		} else {
			slog.Debug("session destroyed", "session", h.sess.ID())
		}
	})
	return h.closeErr
}

// SendAndAwait submits prompt and waits for the turn to complete. It returns
// the final assistant message, or the concatenated deltas if the backend
// sent none.
func (h *Handle) SendAndAwait(ctx context.Context, prompt string) (string, error) {
	return h.turn(ctx, prompt, nil)
}

// SendWithDeltas submits prompt and calls onDelta for every non-empty
// fragment in emission order. An error from onDelta aborts the turn.
// On failure the accumulated text is discarded.
func (h *Handle) SendWithDeltas(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	if onDelta == nil {
		onDelta = func(string) error { return nil }
	}
	return h.turn(ctx, prompt, onDelta)
}

func (h *Handle) turn(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	events := make(chan Event, 64)
	done := make(chan struct{})

	// Subscribe before sending so no event of this turn is missed.
	unsubscribe := h.sess.On(func(raw backend.RawEvent) {
		ev := Decode(raw)
		if ev.Kind == KindUnknown {
			return
		}
		select {
		case events <- ev:
		case <-done:
		}
	})
	defer func() {
		unsubscribe()
		close(done)
	}()

	if err := h.sess.Send(ctx, prompt); err != nil {
		return "", fmt.Errorf("send prompt: %w", err)
	}

	var (
		acc   strings.Builder
		final string
		seen  bool
	)
	for {
		select {
		case <-ctx.Done():
			return "", context.Cause(ctx)
		case ev := <-events:
			switch ev.Kind {
			case KindDelta:
				acc.WriteString(ev.Text)
				if onDelta != nil {
					if err := onDelta(ev.Text); err != nil {
						return "", err
					}
				}
			case KindMessage:
				final, seen = ev.Text, true
			case KindError:
				return "", &backend.Error{Status: ev.Status, Message: ev.Text}
			case KindIdle:
				if onDelta == nil && seen {
					return final, nil
				}
				return acc.String(), nil
			}
		}
	}
}

// IsUnavailable reports whether err came from a refused session open.
func IsUnavailable(err error) bool {
	return errors.Is(err, apierrors.ErrBackendUnavailable)
}
