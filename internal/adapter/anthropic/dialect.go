// Package anthropic implements the Anthropic Messages API front.
package anthropic

import (
	"github.com/google/uuid"

	"github.com/zhengjr9/claude-gateway/internal/adapter"
	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/httputil"
)

// Dialect implements adapter.Dialect for POST /v1/messages.
type Dialect struct{}

var _ adapter.Dialect = Dialect{}

func (Dialect) Name() string { return "anthropic" }

// NewID returns a fresh msg_ id.
func (Dialect) NewID() string { return "msg_" + uuid.NewString() }

func (Dialect) Decode(body []byte) (*adapter.Request, error) {
	req, err := ParseRequest(body)
	if err != nil {
		return nil, err
	}
	return &adapter.Request{
		Model:     req.Model,
		System:    req.System,
		Prompt:    BuildPrompt(req),
		MaxTokens: req.MaxTokens.Int(),
		Stream:    req.Stream,
	}, nil
}

func (Dialect) Reply(msg adapter.Message) any {
	return MessagesResponse{
		ID:      msg.ID,
		Type:    "message",
		Role:    "assistant",
		Model:   msg.Model,
		Content: []ContentBlock{{Type: "text", Text: msg.Text}},
	}
}

func (Dialect) ErrorBody(m apierrors.Mapped) any { return m.Body() }

func (Dialect) StartFrames(msg adapter.Message) []httputil.Frame {
	return []httputil.Frame{{
		Event: "message_start",
		Data: MessageStart{
			Type: "message_start",
			Message: StreamMessage{
				ID:      msg.ID,
				Type:    "message",
				Role:    "assistant",
				Content: []ContentBlock{},
				Model:   msg.Model,
			},
		},
	}}
}

func (Dialect) DeltaFrames(_ adapter.Message, text string) []httputil.Frame {
	return []httputil.Frame{{
		Event: "content_block_delta",
		Data: ContentBlockDelta{
			Type:  "content_block_delta",
			Index: 0,
			Delta: TextDelta{Type: "text_delta", Text: text},
		},
	}}
}

func (Dialect) StopFrames(adapter.Message) []httputil.Frame {
	return []httputil.Frame{{Event: "message_stop", Data: MessageStop{Type: "message_stop"}}}
}

func (Dialect) ErrorFrames(_ adapter.Message, m apierrors.Mapped) []httputil.Frame {
	return []httputil.Frame{{Event: "error", Data: m.Body()}}
}
