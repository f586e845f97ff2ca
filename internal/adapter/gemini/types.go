package gemini

import "github.com/zhengjr9/claude-gateway/internal/adapter"

// GenerateContentRequest mirrors the accepted subset of the Gemini
// generateContent request body.
type GenerateContentRequest struct {
	Contents          []Content          `json:"contents" validate:"required,min=1,dive"`
	SystemInstruction *SystemInstruction `json:"systemInstruction"`
	// SystemInstructionSnake is the snake_case spelling the REST API also accepts.
	SystemInstructionSnake *SystemInstruction `json:"system_instruction"`
	GenerationConfig       *GenerationConfig  `json:"generationConfig"`
}

// Content is a single turn in a Gemini conversation.
type Content struct {
	Role  string `json:"role,omitempty" validate:"omitempty,oneof=user model"` // "user" | "model"
	Parts []Part `json:"parts"`
}

// Part carries text content. Parts without text are ignored.
type Part struct {
	Text string `json:"text"`
}

// SystemInstruction carries the system prompt.
type SystemInstruction struct {
	Parts []Part `json:"parts"`
}

// GenerationConfig holds the generation knobs the gateway honours.
type GenerationConfig struct {
	MaxOutputTokens *adapter.TokenCount `json:"maxOutputTokens" validate:"omitempty,gt=0"`
}

// GenerateContentResponse is the Gemini response document. Streamed chunks
// use the same shape.
type GenerateContentResponse struct {
	Candidates   []Candidate `json:"candidates"`
	ModelVersion string      `json:"modelVersion,omitempty"`
	ResponseID   string      `json:"responseId,omitempty"`
}

// Candidate is one response candidate.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

// ErrorResponse is the Google API error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
