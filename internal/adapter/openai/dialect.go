// Package openai implements the OpenAI chat completions front on top of the
// same session pipeline as the Messages API.
package openai

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zhengjr9/claude-gateway/internal/adapter"
	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/httputil"
	"github.com/zhengjr9/claude-gateway/internal/metrics"
	"github.com/zhengjr9/claude-gateway/internal/prompt"
	"github.com/zhengjr9/claude-gateway/internal/session"
)

const doneMarker = "[DONE]"

// Dialect implements adapter.Dialect for POST /v1/chat/completions.
type Dialect struct {
	// Now stamps the created field; defaults to time.Now.
	Now func() time.Time
}

var _ adapter.Dialect = Dialect{}

// NewHandler returns the POST /v1/chat/completions handler.
func NewHandler(sessions *session.Manager, m *metrics.Collector) http.Handler {
	return adapter.NewHandler(Dialect{}, sessions, m)
}

func (Dialect) Name() string { return "openai" }

func (Dialect) NewID() string { return "chatcmpl-" + uuid.NewString() }

func (Dialect) Decode(body []byte) (*adapter.Request, error) {
	req, err := ParseRequest(body)
	if err != nil {
		return nil, err
	}
	system, turns := SplitMessages(req.Messages)
	return &adapter.Request{
		Model:     req.Model,
		System:    system,
		Prompt:    prompt.Build(system, turns),
		MaxTokens: maxTokens(req),
		Stream:    req.Stream,
	}, nil
}

func (d Dialect) Reply(msg adapter.Message) any {
	return ChatCompletionResponse{
		ID:      msg.ID,
		Object:  "chat.completion",
		Created: d.created(),
		Model:   msg.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      ChoiceMessage{Role: "assistant", Content: msg.Text},
			FinishReason: "stop",
		}},
	}
}

func (Dialect) ErrorBody(m apierrors.Mapped) any {
	return ErrorResponse{Error: ErrorDetail{Message: m.Message, Type: string(m.Type)}}
}

func (d Dialect) StartFrames(msg adapter.Message) []httputil.Frame {
	return []httputil.Frame{{Data: d.chunk(msg, Delta{Role: "assistant"}, nil)}}
}

func (d Dialect) DeltaFrames(msg adapter.Message, text string) []httputil.Frame {
	return []httputil.Frame{{Data: d.chunk(msg, Delta{Content: text}, nil)}}
}

func (d Dialect) StopFrames(msg adapter.Message) []httputil.Frame {
	stop := "stop"
	return []httputil.Frame{
		{Data: d.chunk(msg, Delta{}, &stop)},
		{Data: doneMarker},
	}
}

func (d Dialect) ErrorFrames(_ adapter.Message, m apierrors.Mapped) []httputil.Frame {
	return []httputil.Frame{{Data: d.ErrorBody(m)}}
}

func (d Dialect) chunk(msg adapter.Message, delta Delta, finish *string) StreamChunk {
	return StreamChunk{
		ID:      msg.ID,
		Object:  "chat.completion.chunk",
		Created: d.created(),
		Model:   msg.Model,
		Choices: []StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func (d Dialect) created() int64 {
	if d.Now != nil {
		return d.Now().Unix()
	}
	return time.Now().Unix()
}
