// Package backendtest provides a scripted in-memory backend for tests.
package backendtest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zhengjr9/claude-gateway/internal/backend"
)

// Script controls what every session opened by a Client does on Send.
type Script struct {
	// Deltas are emitted in order by streaming sessions.
	Deltas []string
	// Final is the assistant.message text; defaults to the joined deltas.
	Final string
	// Err, when set, is emitted as session.error after the deltas.
	Err error
	// SendErr is returned synchronously from Send.
	SendErr error
	// Noise emits an unrecognised event before anything else.
	Noise bool
	// Hang suppresses the idle event so the turn never completes.
	Hang bool
}

// Client is a fake backend.Client that records every session it opens.
type Client struct {
	Script    Script
	CreateErr error

	mu       sync.Mutex
	sessions []*Session
	configs  []backend.SessionConfig
}

// CreateSession implements backend.Client.
func (c *Client) CreateSession(_ context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, cfg)
	if c.CreateErr != nil {
		return nil, c.CreateErr
	}
	s := &Session{id: fmt.Sprintf("fake-%d", len(c.sessions)+1), cfg: cfg, script: c.Script}
	c.sessions = append(c.sessions, s)
	return s, nil
}

// Sessions returns the sessions opened so far.
func (c *Client) Sessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Session(nil), c.sessions...)
}

// Configs returns the configuration of every CreateSession call.
func (c *Client) Configs() []backend.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]backend.SessionConfig(nil), c.configs...)
}

// TotalDestroys sums Destroy calls over all sessions.
func (c *Client) TotalDestroys() int {
	n := 0
	for _, s := range c.Sessions() {
		n += s.Destroys()
	}
	return n
}

// ListingClient is a Client that also lists models.
type ListingClient struct {
	*Client
	Models  []backend.Model
	ListErr error
}

// ListModels implements backend.ModelLister.
func (c *ListingClient) ListModels(context.Context) ([]backend.Model, error) {
	if c.ListErr != nil {
		return nil, c.ListErr
	}
	return c.Models, nil
}

// Session is a fake backend.Session.
type Session struct {
	backend.Emitter

	id     string
	cfg    backend.SessionConfig
	script Script

	wg       sync.WaitGroup
	destroys atomic.Int32
	prompts  []string
	mu       sync.Mutex
}

// ID implements backend.Session.
func (s *Session) ID() string { return s.id }

// Config returns the configuration the session was opened with.
func (s *Session) Config() backend.SessionConfig { return s.cfg }

// Prompts returns every prompt passed to Send.
func (s *Session) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Destroys reports how many times Destroy was called.
func (s *Session) Destroys() int { return int(s.destroys.Load()) }

// Send implements backend.Session.
func (s *Session) Send(_ context.Context, prompt string) error {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.script.SendErr != nil {
		return s.script.SendErr
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	return nil
}

func (s *Session) run() {
	sc := s.script
	if sc.Noise {
		s.Emit(backend.RawEvent{Type: "assistant.reasoning", Data: map[string]any{"text": "hmm"}})
		s.Emit(backend.RawEvent{Type: backend.EventMessageDelta, Data: map[string]any{"deltaContent": 7}})
	}
	if s.cfg.Streaming {
		for _, d := range sc.Deltas {
			s.Emit(backend.DeltaEvent(d))
		}
	}
	if sc.Err != nil {
		s.Emit(backend.ErrorEvent(sc.Err))
		return
	}
	final := sc.Final
	if final == "" {
		final = strings.Join(sc.Deltas, "")
	}
	if !s.cfg.Streaming {
		s.Emit(backend.MessageEvent(final))
	}
	if !sc.Hang {
		s.Emit(backend.IdleEvent())
	}
}

// Destroy implements backend.Session.
func (s *Session) Destroy(context.Context) error {
	s.destroys.Add(1)
	s.wg.Wait()
	return nil
}
