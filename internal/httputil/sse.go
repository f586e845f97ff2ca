// Package httputil holds small response helpers shared by the front dialects.
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	sse "github.com/tmaxmax/go-sse"
)

// SetSSEHeaders sets the standard headers for a Server-Sent Events response.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Frame is one outbound SSE event. A string Data is written verbatim;
// anything else is JSON encoded. An empty Event produces an unnamed event.
type Frame struct {
	Event string
	Data  any
}

// Encode renders f as an SSE message.
func (f Frame) Encode() (*sse.Message, error) {
	var payload string
	switch d := f.Data.(type) {
	case string:
		payload = d
	default:
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("marshal %s frame: %w", f.Event, err)
		}
		payload = string(raw)
	}

	msg := &sse.Message{}
	if f.Event != "" {
		t, err := sse.NewType(f.Event)
		if err != nil {
			return nil, err
		}
		msg.Type = t
	}
	msg.AppendData(payload)
	return msg, nil
}

// WriteFrames writes frames in order and flushes once they are all written.
func WriteFrames(w http.ResponseWriter, frames ...Frame) error {
	for _, f := range frames {
		msg, err := f.Encode()
		if err != nil {
			return err
		}
		if _, err := msg.WriteTo(w); err != nil {
			return err
		}
	}
	return Flush(w)
}

// Flush pushes buffered bytes to the client. Writers that cannot flush are
// tolerated.
func Flush(w http.ResponseWriter) error {
	err := http.NewResponseController(w).Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

// WriteJSON writes v as a JSON document with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
