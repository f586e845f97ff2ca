package dify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/zhengjr9/claude-gateway/internal/backend"
)

// Session maps one gateway session onto a Dify conversation.
type Session struct {
	backend.Emitter

	client *Client
	id     string
	cfg    backend.SessionConfig

	mu             sync.Mutex
	conversationID string
	cancels        []context.CancelFunc
	wg             sync.WaitGroup
}

func newSession(c *Client, cfg backend.SessionConfig) *Session {
	return &Session{client: c, id: "dify-" + uuid.NewString(), cfg: cfg}
}

// ID implements backend.Session.
func (s *Session) ID() string { return s.id }

// ConversationID returns the Dify conversation id, empty before the first
// answer arrives.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) rememberConversation(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == "" {
		s.conversationID = id
	}
}

// Send implements backend.Session. Upstream failures to start a streaming
// answer are returned directly; everything later arrives as events.
func (s *Session) Send(ctx context.Context, prompt string) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	req := &ChatRequest{
		Inputs:         map[string]any{},
		Query:          prompt,
		ConversationID: s.conversationID,
		User:           s.client.user,
	}
	s.mu.Unlock()

	if !s.cfg.Streaming {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runBlocking(runCtx, req)
		}()
		return nil
	}

	stream, err := s.client.SendStreaming(runCtx, req)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pump(runCtx, stream)
	}()
	return nil
}

func (s *Session) runBlocking(ctx context.Context, req *ChatRequest) {
	resp, err := s.client.SendBlocking(ctx, req)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.Emit(backend.ErrorEvent(err))
		return
	}
	s.rememberConversation(resp.ConversationID)
	s.Emit(backend.MessageEvent(resp.Answer))
	s.Emit(backend.IdleEvent())
}

// pump translates Dify stream events. The channel is always drained so the
// reader goroutine can exit.
func (s *Session) pump(ctx context.Context, stream <-chan StreamEvent) {
	finished := false
	for ev := range stream {
		if finished || ctx.Err() != nil {
			continue
		}
		if ev.Err != nil {
			s.Emit(backend.ErrorEvent(ev.Err))
			finished = true
			continue
		}
		s.rememberConversation(ev.ConversationID)

		switch ev.Event {
		case eventMessage, eventAgentMessage:
			if ev.Answer != "" {
				s.Emit(backend.DeltaEvent(ev.Answer))
			}
		case eventMessageEnd:
			s.Emit(backend.IdleEvent())
			finished = true
		case eventError:
			msg := ev.Message
			if msg == "" {
				msg = fmt.Sprintf("dify stream error %s", ev.Code)
			}
			s.Emit(backend.ErrorEvent(&backend.Error{Status: ev.Status, Message: msg}))
			finished = true
		}
	}
	if !finished && ctx.Err() == nil {
		// Stream closed without message_end; the answer is whatever arrived.
		s.Emit(backend.IdleEvent())
	}
}

// Destroy implements backend.Session. It stops in-flight work and deletes
// the Dify conversation if one was started.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()

	conv := s.ConversationID()
	if conv == "" {
		return nil
	}
	if err := s.client.DeleteConversation(ctx, conv); err != nil {
		return fmt.Errorf("delete conversation %s: %w", conv, err)
	}
	slog.Debug("dify conversation deleted", "session", s.id, "conversation", conv)
	return nil
}
