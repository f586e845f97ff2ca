// Package adapter runs the request pipeline shared by every front protocol:
// decode and validate, open a backend session, relay the turn, encode the
// reply. A Dialect supplies the protocol-specific shapes.
package adapter

import (
	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/httputil"
)

// Request is a validated chat request reduced to what the backend needs.
type Request struct {
	// Model is empty when the caller did not name one.
	Model     string
	System    string
	Prompt    string
	MaxTokens int
	Stream    bool
}

// Message identifies one assistant reply. Text is empty while streaming.
type Message struct {
	ID    string
	Model string
	Text  string
}

// Dialect translates between a front protocol and the shared pipeline.
type Dialect interface {
	// Name labels logs and metrics.
	Name() string
	// NewID allocates a fresh reply id.
	NewID() string
	// Decode validates a raw body. Rejections carry a 400 status.
	Decode(body []byte) (*Request, error)
	// Reply renders a completed non-streaming reply.
	Reply(msg Message) any
	// ErrorBody renders a classified failure.
	ErrorBody(m apierrors.Mapped) any

	StartFrames(msg Message) []httputil.Frame
	DeltaFrames(msg Message, text string) []httputil.Frame
	StopFrames(msg Message) []httputil.Frame
	ErrorFrames(msg Message, m apierrors.Mapped) []httputil.Frame
}
