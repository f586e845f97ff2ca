package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/httputil"
	"github.com/zhengjr9/claude-gateway/internal/metrics"
	"github.com/zhengjr9/claude-gateway/internal/session"
)

// MaxBodyBytes caps inbound request bodies.
const MaxBodyBytes = 8 << 20

// Handler serves a chat endpoint for one Dialect.
type Handler struct {
	dialect  Dialect
	sessions *session.Manager
	metrics  *metrics.Collector
}

// NewHandler constructs a Handler. m may be nil.
func NewHandler(d Dialect, sessions *session.Manager, m *metrics.Collector) *Handler {
	return &Handler{dialect: d, sessions: sessions, metrics: m}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status, streaming := h.serve(w, r)
	h.metrics.ObserveRequest(h.dialect.Name(), streaming, status, time.Since(start))
}

// serve returns the HTTP status committed and whether the reply streamed.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request) (int, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return h.fail(w, apierrors.InvalidRequestf("Request body too large")), false
		}
		return h.fail(w, apierrors.Malformed(err)), false
	}

	req, err := h.dialect.Decode(body)
	if err != nil {
		return h.fail(w, err), false
	}

	msg := Message{ID: h.dialect.NewID(), Model: req.Model}
	if msg.Model == "" {
		msg.Model = h.sessions.DefaultModel()
	}

	ctx := r.Context()
	sess, err := h.sessions.Open(ctx, session.Options{
		Model:     msg.Model,
		System:    req.System,
		Streaming: req.Stream,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return h.fail(w, err), req.Stream
	}
	defer sess.Close(ctx)

	if !req.Stream {
		text, err := sess.SendAndAwait(ctx, req.Prompt)
		if err != nil {
			return h.fail(w, err), false
		}
		msg.Text = text
		if err := httputil.WriteJSON(w, http.StatusOK, h.dialect.Reply(msg)); err != nil {
			slog.Debug("write reply failed", "dialect", h.dialect.Name(), "id", msg.ID, "error", err)
		}
		return http.StatusOK, false
	}

	h.relay(ctx, w, sess, req.Prompt, msg)
	return http.StatusOK, true
}

// relay streams one turn. The status is already committed, so failures are
// reported as a terminal error frame when the client is still there.
func (h *Handler) relay(ctx context.Context, w http.ResponseWriter, sess *session.Handle, prompt string, msg Message) {
	st := NewStream(w, h.dialect, msg)
	defer func() {
		if !st.Terminated() {
			slog.Debug("stream closed without terminal frame", "dialect", h.dialect.Name(), "id", msg.ID)
		}
	}()
	if err := st.Start(); err != nil {
		slog.Debug("client gone before first frame", "id", msg.ID, "error", err)
		return
	}

	_, err := sess.SendWithDeltas(ctx, prompt, func(text string) error {
		h.metrics.StreamDelta(h.dialect.Name())
		return st.Delta(text)
	})
	if err == nil {
		if err := st.Stop(); err != nil {
			slog.Debug("write stop frame failed", "id", msg.ID, "error", err)
		}
		return
	}

	if errors.Is(err, apierrors.ErrClientGone) || ctx.Err() != nil {
		slog.Info("client disconnected mid-stream", "dialect", h.dialect.Name(), "id", msg.ID, "session", sess.ID())
		return
	}

	mapped := apierrors.Classify(err)
	h.metrics.Error(string(mapped.Type))
	slog.Warn("stream failed", "dialect", h.dialect.Name(), "id", msg.ID, "status", mapped.Status, "error", err)
	if err := st.Fail(mapped); err != nil {
		slog.Debug("write error frame failed", "id", msg.ID, "error", err)
	}
}

// fail writes a classified error document and returns its status.
func (h *Handler) fail(w http.ResponseWriter, err error) int {
	mapped := apierrors.Classify(err)
	h.metrics.Error(string(mapped.Type))
	switch {
	case session.IsUnavailable(err):
		slog.Error("backend unavailable", "dialect", h.dialect.Name(), "status", mapped.Status, "error", err)
	case mapped.Status >= http.StatusInternalServerError:
		slog.Error("request failed", "dialect", h.dialect.Name(), "status", mapped.Status, "error", err)
	default:
		slog.Info("request rejected", "dialect", h.dialect.Name(), "status", mapped.Status, "message", mapped.Message)
	}
	if err := httputil.WriteJSON(w, mapped.Status, h.dialect.ErrorBody(mapped)); err != nil {
		slog.Debug("write error body failed", "error", err)
	}
	return mapped.Status
}
