package a2a

import (
	"google.golang.org/genai"

	gwprompt "github.com/zhengjr9/claude-gateway/internal/prompt"
)

// prompt renders one A2A message the same way the HTTP fronts render a
// single-turn transcript.
func prompt(system, query string) string {
	return gwprompt.Build(system, []gwprompt.Turn{{Role: gwprompt.RoleUser, Text: query}})
}

func textContent(text string) *genai.Content {
	return &genai.Content{
		Role:  genai.RoleModel,
		Parts: []*genai.Part{{Text: text}},
	}
}
