// Package a2a exposes the conversational backend as an ADK agent served over
// the A2A protocol.
package a2a

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	adksession "google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/zhengjr9/claude-gateway/internal/session"
)

// emptyInputReply answers invocations that carry no text.
const emptyInputReply = "(empty input)"

// Opener opens backend sessions. *session.Manager satisfies it.
type Opener interface {
	Open(ctx context.Context, opts session.Options) (*session.Handle, error)
}

// AgentConfig holds the configuration for the A2A agent.
type AgentConfig struct {
	// Name is the agent name exposed via the A2A AgentCard.
	Name        string
	Description string
	Sessions    Opener
	// System is an optional directive sent with every invocation.
	System string
}

// New returns an agent.Agent that answers each invocation from a fresh
// streaming backend session.
func New(cfg AgentConfig) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, errors.New("a2a agent: Name must not be empty")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("a2a agent: Sessions must not be nil")
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         runFunc(cfg),
	})
}

func runFunc(cfg AgentConfig) func(agent.InvocationContext) iter.Seq2[*adksession.Event, error] {
	return func(ctx agent.InvocationContext) iter.Seq2[*adksession.Event, error] {
		return func(yield func(*adksession.Event, error) bool) {
			emit := func(text string, partial bool) bool {
				return yield(newEvent(ctx, cfg.Name, text, partial), nil)
			}
			if err := answer(ctx, cfg, extractQuery(ctx.UserContent()), emit); err != nil {
				yield(nil, err)
			}
		}
	}
}

// errStopped signals that the event consumer went away mid-turn.
var errStopped = errors.New("consumer stopped")

// answer runs one turn. emit receives each delta as a partial event and the
// full text as the final event; it returns false when the consumer is gone.
// The backend session is closed on every path.
func answer(ctx context.Context, cfg AgentConfig, query string, emit func(text string, partial bool) bool) error {
	if query == "" {
		emit(emptyInputReply, false)
		return nil
	}

	h, err := cfg.Sessions.Open(ctx, session.Options{System: cfg.System, Streaming: true})
	if err != nil {
		return fmt.Errorf("open backend session: %w", err)
	}
	defer func() {
		if err := h.Close(ctx); err != nil {
			slog.Warn("a2a session destroy failed", "session", h.ID(), "error", err)
		}
	}()

	full, err := h.SendWithDeltas(ctx, prompt(cfg.System, query), func(delta string) error {
		if !emit(delta, true) {
			return errStopped
		}
		return nil
	})
	if errors.Is(err, errStopped) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("backend turn failed: %w", err)
	}

	// The final non-partial event makes IsFinalResponse() true so the runner
	// closes the invocation.
	emit(full, false)
	return nil
}

func newEvent(ctx agent.InvocationContext, author, text string, partial bool) *adksession.Event {
	ev := adksession.NewEvent(ctx.InvocationID())
	ev.Author = author
	ev.Branch = ctx.Branch()
	ev.LLMResponse = model.LLMResponse{
		Content: textContent(text),
		Partial: partial,
	}
	return ev
}

// extractQuery pulls the plain-text content from the genai.Content that ADK
// puts in the InvocationContext when the caller sends a message.
func extractQuery(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
