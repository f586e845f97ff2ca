package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/prompt"
)

// unsupportedFields are rejected before schema validation, in this order.
var unsupportedFields = []string{"tools", "tool_choice", "tool", "tool_results"}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		m := sl.Current().Interface().(Message)
		if !m.Content.Present {
			sl.ReportError(m.Content, "content", "Content", "required", "")
		}
	}, Message{})
	return v
}

// UnsupportedFields lists the denylisted top-level keys present in raw.
func UnsupportedFields(raw map[string]json.RawMessage) []string {
	var found []string
	for _, k := range unsupportedFields {
		if _, ok := raw[k]; ok {
			found = append(found, k)
		}
	}
	return found
}

// ParseRequest decodes and validates a Messages request body. Denylisted
// fields are reported even when the rest of the body is invalid.
func ParseRequest(body []byte) (*MessagesRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apierrors.Malformed(err)
	}
	if found := UnsupportedFields(raw); len(found) > 0 {
		return nil, apierrors.InvalidRequestf("Unsupported fields: " + strings.Join(found, ", "))
	}

	var req MessagesRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apierrors.Malformed(err)
	}
	if err := validate.Struct(&req); err != nil {
		return nil, apierrors.Malformed(err)
	}
	return &req, nil
}

// ContentToText joins the non-blank text blocks of c, or returns the plain
// string content unchanged.
func ContentToText(c MessageContent) string {
	if c.IsText {
		return c.Text
	}
	var sb strings.Builder
	for _, b := range c.Blocks {
		if b.Type != "text" || b.Text == nil || strings.TrimSpace(*b.Text) == "" {
			continue
		}
		sb.WriteString(*b.Text)
	}
	return sb.String()
}

// BuildPrompt flattens the request into the backend prompt.
func BuildPrompt(req *MessagesRequest) string {
	turns := make([]prompt.Turn, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, prompt.Turn{Role: prompt.Role(m.Role), Text: ContentToText(m.Content)})
	}
	return prompt.Build(req.System, turns)
}
