package gemini

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/prompt"
)

const roleModel = "model"

var validate = validator.New()

// ParseRequest decodes and validates a generateContent body.
func ParseRequest(body []byte) (*GenerateContentRequest, error) {
	var req GenerateContentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apierrors.Malformed(err)
	}
	if err := validate.Struct(&req); err != nil {
		return nil, apierrors.Malformed(err)
	}
	return &req, nil
}

// Turns maps contents to prompt turns. A missing role is the user's.
func Turns(contents []Content) []prompt.Turn {
	turns := make([]prompt.Turn, 0, len(contents))
	for _, c := range contents {
		role := prompt.RoleUser
		if c.Role == roleModel {
			role = prompt.RoleAssistant
		}
		turns = append(turns, prompt.Turn{Role: role, Text: joinParts(c.Parts)})
	}
	return turns
}

// System returns the trimmed system instruction text under either spelling.
func System(req *GenerateContentRequest) string {
	sys := req.SystemInstruction
	if sys == nil {
		sys = req.SystemInstructionSnake
	}
	if sys == nil {
		return ""
	}
	return strings.TrimSpace(joinParts(sys.Parts))
}

func joinParts(parts []Part) string {
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func maxTokens(req *GenerateContentRequest) int {
	if req.GenerationConfig == nil {
		return 0
	}
	return req.GenerationConfig.MaxOutputTokens.Int()
}
