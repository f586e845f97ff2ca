// Package difytest provides an httptest server that mimics the parts of the
// Dify API the gateway uses.
package difytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Mock simulates the Dify /v1/chat-messages and /v1/conversations endpoints.
type Mock struct {
	Server *httptest.Server

	Answer         string
	MessageID      string
	ConversationID string

	// FailStatus, when non-zero, makes chat-messages answer with that status.
	FailStatus  int
	FailMessage string
	// StreamError, when set, ends a streaming answer with a Dify error event
	// after the first word.
	StreamError string
	// OmitMessageEnd closes the stream without a message_end event.
	OmitMessageEnd bool

	mu          sync.Mutex
	requests    []map[string]any
	authHeaders []string
	deleted     []string
}

// New creates and starts a mock Dify server.
func New(answer, messageID, conversationID string) *Mock {
	m := &Mock{
		Answer:         answer,
		MessageID:      messageID,
		ConversationID: conversationID,
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *Mock) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *Mock) URL() string {
	return m.Server.URL
}

// Requests returns the decoded chat-messages bodies received so far.
func (m *Mock) Requests() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.requests...)
}

// LastRequest returns the most recent chat-messages body, or nil.
func (m *Mock) LastRequest() map[string]any {
	reqs := m.Requests()
	if len(reqs) == 0 {
		return nil
	}
	return reqs[len(reqs)-1]
}

// AuthHeaders returns the Authorization header of every chat-messages call.
func (m *Mock) AuthHeaders() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.authHeaders...)
}

// Deleted returns the conversation ids deleted so far.
func (m *Mock) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func (m *Mock) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/chat-messages" && r.Method == http.MethodPost:
		m.handleChat(w, r)
	case strings.HasPrefix(r.URL.Path, "/v1/conversations/") && r.Method == http.MethodDelete:
		m.mu.Lock()
		m.deleted = append(m.deleted, strings.TrimPrefix(r.URL.Path, "/v1/conversations/"))
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"success"}`))
	default:
		http.NotFound(w, r)
	}
}

func (m *Mock) handleChat(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	m.requests = append(m.requests, body)
	m.authHeaders = append(m.authHeaders, r.Header.Get("Authorization"))
	m.mu.Unlock()

	if m.FailStatus != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(m.FailStatus)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    "mock_failure",
			"message": m.FailMessage,
			"status":  m.FailStatus,
		})
		return
	}

	if mode, _ := body["response_mode"].(string); mode == "streaming" {
		m.writeStreaming(w)
		return
	}
	m.writeBlocking(w)
}

func (m *Mock) writeBlocking(w http.ResponseWriter) {
	resp := map[string]any{
		"message_id":      m.MessageID,
		"conversation_id": m.ConversationID,
		"mode":            "chat",
		"answer":          m.Answer,
		"metadata":        map[string]any{},
		"created_at":      time.Now().Unix(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *Mock) writeStreaming(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, hasFlusher := w.(http.Flusher)

	send := func(chunk map[string]any) {
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if hasFlusher {
			flusher.Flush()
		}
	}

	// Keep-alive noise a real Dify server interleaves.
	send(map[string]any{"event": "ping"})

	for i, word := range SplitWords(m.Answer) {
		answer := word
		if i > 0 {
			answer = " " + word
		}
		send(map[string]any{
			"event":           "message",
			"task_id":         "task-1",
			"message_id":      m.MessageID,
			"conversation_id": m.ConversationID,
			"answer":          answer,
			"created_at":      time.Now().Unix(),
		})
		if m.StreamError != "" {
			send(map[string]any{
				"event":      "error",
				"task_id":    "task-1",
				"message_id": m.MessageID,
				"status":     http.StatusTooManyRequests,
				"code":       "rate_limit",
				"message":    m.StreamError,
			})
			return
		}
	}

	if m.OmitMessageEnd {
		return
	}
	send(map[string]any{
		"event":           "message_end",
		"task_id":         "task-1",
		"message_id":      m.MessageID,
		"conversation_id": m.ConversationID,
	})
}

// SplitWords splits s on spaces, returning s itself when it has no words.
func SplitWords(s string) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{s}
	}
	return words
}
