// Package gemini implements backend.Client on the Gemini API through
// google.golang.org/genai chat sessions.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/zhengjr9/claude-gateway/internal/backend"
)

// Options configures a Client.
type Options struct {
	APIKey string
	// BaseURL overrides the API endpoint; empty uses the public endpoint.
	BaseURL string
	// HTTPClient should carry no Timeout: it also serves streamed turns.
	HTTPClient *http.Client
	// Timeout bounds blocking turns. Streamed turns rely on the caller's
	// context instead.
	Timeout time.Duration
}

// Client opens Gemini chat sessions.
type Client struct {
	genai   *genai.Client
	timeout time.Duration
}

// NewClient constructs a Client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{genai: gc, timeout: opts.Timeout}, nil
}

// CreateSession implements backend.Client.
func (c *Client) CreateSession(ctx context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	chat, err := c.genai.Chats.Create(ctx, cfg.Model, generateConfig(cfg), nil)
	if err != nil {
		return nil, mapError(err)
	}
	return newSession(chat, cfg.Streaming, c.timeout), nil
}

func generateConfig(cfg backend.SessionConfig) *genai.GenerateContentConfig {
	gcfg := &genai.GenerateContentConfig{}
	if strings.TrimSpace(cfg.SystemMessage) != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(cfg.SystemMessage, genai.RoleUser)
	}
	if cfg.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(min(cfg.MaxTokens, math.MaxInt32))
	}
	return gcfg
}

// ListModels implements backend.ModelLister.
func (c *Client) ListModels(ctx context.Context) ([]backend.Model, error) {
	var models []backend.Model
	for m, err := range c.genai.Models.All(ctx) {
		if err != nil {
			return nil, mapError(err)
		}
		id := strings.TrimPrefix(m.Name, "models/")
		name := m.DisplayName
		if name == "" {
			name = id
		}
		models = append(models, backend.Model{ID: id, Name: name})
	}
	return models, nil
}

// chatSender is the part of *genai.Chat a session drives.
type chatSender interface {
	Send(ctx context.Context, parts ...*genai.Part) (*genai.GenerateContentResponse, error)
	SendStream(ctx context.Context, parts ...*genai.Part) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Session is one Gemini chat.
type Session struct {
	backend.Emitter

	id        string
	chat      chatSender
	streaming bool
	timeout   time.Duration

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

func newSession(chat chatSender, streaming bool, timeout time.Duration) *Session {
	return &Session{id: "gemini-" + uuid.NewString(), chat: chat, streaming: streaming, timeout: timeout}
}

// ID implements backend.Session.
func (s *Session) ID() string { return s.id }

// Send implements backend.Session.
func (s *Session) Send(ctx context.Context, prompt string) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.streaming {
			s.stream(runCtx, prompt)
			return
		}
		s.blocking(runCtx, prompt)
	}()
	return nil
}

func (s *Session) blocking(ctx context.Context, prompt string) {
	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.chat.Send(callCtx, genai.NewPartFromText(prompt))
	// Only a destroyed session stays silent; an expired call is reported.
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.Emit(backend.ErrorEvent(mapError(err)))
		return
	}
	s.Emit(backend.MessageEvent(text(resp)))
	s.Emit(backend.IdleEvent())
}

func (s *Session) stream(ctx context.Context, prompt string) {
	for resp, err := range s.chat.SendStream(ctx, genai.NewPartFromText(prompt)) {
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.Emit(backend.ErrorEvent(mapError(err)))
			return
		}
		if t := text(resp); t != "" {
			s.Emit(backend.DeltaEvent(t))
		}
	}
	if ctx.Err() == nil {
		s.Emit(backend.IdleEvent())
	}
}

// Destroy implements backend.Session. Gemini chats keep no server-side state.
func (s *Session) Destroy(context.Context) error {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	return nil
}

func text(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text()
}

// mapError keeps the HTTP status of genai API errors.
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &backend.Error{Status: apiErr.Code, Message: apiMessage(apiErr)}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &backend.Error{Status: apiErrPtr.Code, Message: apiMessage(*apiErrPtr)}
	}
	return err
}

func apiMessage(e genai.APIError) string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}
