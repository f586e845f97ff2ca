package anthropic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zhengjr9/claude-gateway/internal/adapter"
)

// MessagesRequest mirrors the accepted subset of the Anthropic Messages API
// request body. Unknown fields are ignored.
type MessagesRequest struct {
	Model     string              `json:"model"`
	MaxTokens *adapter.TokenCount `json:"max_tokens" validate:"required,gt=0"`
	Messages  []Message           `json:"messages" validate:"required,min=1,dive"`
	System    string              `json:"system"`
	Stream    bool                `json:"stream"`
}

// Message is a single conversation turn.
type Message struct {
	Role    string         `json:"role" validate:"required,oneof=user assistant"`
	Content MessageContent `json:"content"`
}

// MessageContent is either a plain string or a list of text blocks.
type MessageContent struct {
	Text    string
	Blocks  []TextBlock `validate:"omitempty,dive"`
	Present bool
	IsText  bool
}

// TextBlock is a {"type":"text","text":…} content block.
type TextBlock struct {
	Type string  `json:"type" validate:"eq=text"`
	Text *string `json:"text" validate:"required"`
}

// UnmarshalJSON accepts a string or an array of text blocks. null leaves the
// content absent.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = MessageContent{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = MessageContent{Text: s, Present: true, IsText: true}
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var blocks []TextBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return err
		}
		*c = MessageContent{Blocks: blocks, Present: true}
		return nil
	}
	return fmt.Errorf("content must be a string or an array of text blocks")
}

// MessagesResponse is the non-streaming reply.
type MessagesResponse struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Model   string         `json:"model"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a content block in a reply.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// StreamMessage is the message object carried by message_start.
type StreamMessage struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
	Model   string         `json:"model"`
}

// MessageStart is the payload of the message_start event.
type MessageStart struct {
	Type    string        `json:"type"`
	Message StreamMessage `json:"message"`
}

// ContentBlockDelta is the payload of the content_block_delta event.
type ContentBlockDelta struct {
	Type  string    `json:"type"`
	Index int       `json:"index"`
	Delta TextDelta `json:"delta"`
}

// TextDelta carries incremental text.
type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessageStop is the payload of the message_stop event.
type MessageStop struct {
	Type string `json:"type"`
}

// ModelsResponse is the /v1/models document.
type ModelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// ModelInfo is one entry of ModelsResponse.
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}
