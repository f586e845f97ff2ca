// Package gemini implements the Gemini generateContent front on top of the
// same session pipeline as the Messages API. Streamed replies are SSE data
// frames, as served to clients that ask for alt=sse.
package gemini

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/zhengjr9/claude-gateway/internal/adapter"
	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/httputil"
	"github.com/zhengjr9/claude-gateway/internal/metrics"
	"github.com/zhengjr9/claude-gateway/internal/prompt"
	"github.com/zhengjr9/claude-gateway/internal/session"
)

const (
	actionGenerate = "generateContent"
	actionStream   = "streamGenerateContent"

	finishStop = "STOP"
)

// Dialect implements adapter.Dialect for one generateContent call. The model
// and the streaming mode come from the request path, not the body.
type Dialect struct {
	Model  string
	Stream bool
}

var _ adapter.Dialect = Dialect{}

// NewHandler returns the POST /v1beta/models/{model}:{action} handler.
func NewHandler(sessions *session.Manager, m *metrics.Collector) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		d := Dialect{Model: vars["model"]}
		switch vars["action"] {
		case actionGenerate:
		case actionStream:
			d.Stream = true
		default:
			body := ErrorResponse{Error: ErrorDetail{
				Code:    http.StatusNotFound,
				Message: "Unknown action: " + vars["action"],
				Status:  "NOT_FOUND",
			}}
			_ = httputil.WriteJSON(w, http.StatusNotFound, body)
			return
		}
		adapter.NewHandler(d, sessions, m).ServeHTTP(w, r)
	})
}

func (Dialect) Name() string { return "gemini" }

func (Dialect) NewID() string { return uuid.NewString() }

func (d Dialect) Decode(body []byte) (*adapter.Request, error) {
	req, err := ParseRequest(body)
	if err != nil {
		return nil, err
	}
	system := System(req)
	return &adapter.Request{
		Model:     d.Model,
		System:    system,
		Prompt:    prompt.Build(system, Turns(req.Contents)),
		MaxTokens: maxTokens(req),
		Stream:    d.Stream,
	}, nil
}

func (Dialect) Reply(msg adapter.Message) any {
	return response(msg, msg.Text, finishStop)
}

func (Dialect) ErrorBody(m apierrors.Mapped) any {
	return ErrorResponse{Error: ErrorDetail{Code: m.Status, Message: m.Message, Status: status(m.Type)}}
}

// StartFrames is empty: the first chunk already carries text.
func (Dialect) StartFrames(adapter.Message) []httputil.Frame { return nil }

func (Dialect) DeltaFrames(msg adapter.Message, text string) []httputil.Frame {
	return []httputil.Frame{{Data: response(msg, text, "")}}
}

func (Dialect) StopFrames(msg adapter.Message) []httputil.Frame {
	return []httputil.Frame{{Data: response(msg, "", finishStop)}}
}

func (d Dialect) ErrorFrames(_ adapter.Message, m apierrors.Mapped) []httputil.Frame {
	return []httputil.Frame{{Data: d.ErrorBody(m)}}
}

func response(msg adapter.Message, text, finish string) GenerateContentResponse {
	return GenerateContentResponse{
		Candidates: []Candidate{{
			Content:      Content{Role: roleModel, Parts: []Part{{Text: text}}},
			FinishReason: finish,
		}},
		ModelVersion: msg.Model,
		ResponseID:   msg.ID,
	}
}

func status(t apierrors.ErrorType) string {
	switch t {
	case apierrors.InvalidRequest:
		return "INVALID_ARGUMENT"
	case apierrors.Authentication:
		return "UNAUTHENTICATED"
	case apierrors.Permission:
		return "PERMISSION_DENIED"
	case apierrors.RateLimit:
		return "RESOURCE_EXHAUSTED"
	default:
		return "INTERNAL"
	}
}
