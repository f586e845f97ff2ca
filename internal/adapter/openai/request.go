package openai

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/prompt"
)

var unsupportedFields = []string{"tools", "tool_choice", "functions", "function_call"}

var validate = validator.New()

// ParseRequest decodes and validates a chat completions body.
func ParseRequest(body []byte) (*ChatCompletionRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apierrors.Malformed(err)
	}
	var found []string
	for _, k := range unsupportedFields {
		if _, ok := raw[k]; ok {
			found = append(found, k)
		}
	}
	if len(found) > 0 {
		return nil, apierrors.InvalidRequestf("Unsupported fields: " + strings.Join(found, ", "))
	}

	var req ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apierrors.Malformed(err)
	}
	if err := validate.Struct(&req); err != nil {
		return nil, apierrors.Malformed(err)
	}
	return &req, nil
}

// String returns the message text, joining the non-blank text parts.
func (c Content) String() string {
	if c.Parts == nil {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type != "text" || strings.TrimSpace(p.Text) == "" {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// SplitMessages separates system and developer messages, which become the
// session's system directive, from the conversation turns.
func SplitMessages(msgs []Message) (system string, turns []prompt.Turn) {
	var sys []string
	for _, m := range msgs {
		text := m.Content.String()
		switch m.Role {
		case "system", "developer":
			if strings.TrimSpace(text) != "" {
				sys = append(sys, strings.TrimSpace(text))
			}
		case "user":
			turns = append(turns, prompt.Turn{Role: prompt.RoleUser, Text: text})
		default:
			turns = append(turns, prompt.Turn{Role: prompt.RoleAssistant, Text: text})
		}
	}
	return strings.Join(sys, prompt.Separator), turns
}

func maxTokens(req *ChatCompletionRequest) int {
	if req.MaxCompletionTokens != nil {
		return req.MaxCompletionTokens.Int()
	}
	return req.MaxTokens.Int()
}
