// Package backend defines the contract between the gateway and the
// conversational engines it relays to.
//
// A Client opens Sessions. A Session accepts one prompt per Send and reports
// progress asynchronously as RawEvents delivered to every registered handler,
// sequentially and in emission order. The recognised event types are:
//
//	assistant.message_delta  data.deltaContent (string)  incremental text
//	assistant.message        data.content (string)       final text of a turn
//	session.idle                                          the turn is complete
//	session.error            data.message, data.statusCode
//
// Implementations may emit other types; consumers ignore them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Event types emitted by sessions.
const (
	EventMessageDelta = "assistant.message_delta"
	EventMessage      = "assistant.message"
	EventIdle         = "session.idle"
	EventError        = "session.error"
)

// SessionConfig describes the session a caller wants to open.
type SessionConfig struct {
	Model         string
	SystemMessage string
	Streaming     bool
	MaxTokens     int
}

// RawEvent is a loosely typed event as produced by a backend.
type RawEvent struct {
	Type string
	Data map[string]any
}

// Handler receives session events.
type Handler func(RawEvent)

// Client opens sessions. CreateSession must be safe for concurrent use.
type Client interface {
	CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is a stateful conversation handle owned by a single request.
type Session interface {
	ID() string
	// On registers h and returns a function that removes it.
	On(h Handler) (unsubscribe func())
	// Send submits a prompt. Progress is reported through events.
	Send(ctx context.Context, prompt string) error
	// Destroy releases the session and any backend-side state.
	Destroy(ctx context.Context) error
}

// Model is an entry of a backend's model listing.
type Model struct {
	ID   string `yaml:"id"`
	Name string `yaml:"display_name"`
}

// ModelLister is implemented by clients that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]Model, error)
}

// Error is an upstream failure with the HTTP status the backend reported.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return e.Message
}

// StatusCode returns the upstream status.
func (e *Error) StatusCode() int { return e.Status }

// DeltaEvent builds an assistant.message_delta event.
func DeltaEvent(text string) RawEvent {
	return RawEvent{Type: EventMessageDelta, Data: map[string]any{"deltaContent": text}}
}

// MessageEvent builds an assistant.message event.
func MessageEvent(text string) RawEvent {
	return RawEvent{Type: EventMessage, Data: map[string]any{"content": text}}
}

// IdleEvent builds a session.idle event.
func IdleEvent() RawEvent {
	return RawEvent{Type: EventIdle}
}

// ErrorEvent builds a session.error event from err, keeping its status when
// it carries one.
func ErrorEvent(err error) RawEvent {
	data := map[string]any{"message": err.Error()}
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		data["statusCode"] = sc.StatusCode()
	}
	return RawEvent{Type: EventError, Data: data}
}

// Emitter fans events out to registered handlers. Handlers are invoked
// outside the lock, in registration order.
type Emitter struct {
	mu       sync.Mutex
	next     int
	order    []int
	handlers map[int]Handler
}

// On registers h.
func (e *Emitter) On(h Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[int]Handler)
	}
	id := e.next
	e.next++
	e.handlers[id] = h
	e.order = append(e.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.handlers, id)
			for i, v := range e.order {
				if v == id {
					e.order = append(e.order[:i], e.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit delivers ev to every handler registered at the time of the call.
func (e *Emitter) Emit(ev RawEvent) {
	e.mu.Lock()
	hs := make([]Handler, 0, len(e.order))
	for _, id := range e.order {
		hs = append(hs, e.handlers[id])
	}
	e.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}
