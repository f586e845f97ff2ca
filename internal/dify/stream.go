package dify

import (
	"encoding/json"
	"fmt"
	"io"

	sse "github.com/tmaxmax/go-sse"
)

// maxEventSize bounds a single Dify SSE event.
const maxEventSize = 1 << 20

// ReadStream decodes Dify SSE events from r and sends them to the returned
// channel, which is closed when the stream ends. A decoding failure is sent
// as a final event with Err set.
func ReadStream(r io.Reader) <-chan StreamEvent {
	ch := make(chan StreamEvent, 16)
	go func() {
		defer close(ch)
		for ev, err := range sse.Read(r, &sse.ReadConfig{MaxEventSize: maxEventSize}) {
			if err != nil {
				ch <- StreamEvent{Err: fmt.Errorf("read dify stream: %w", err)}
				return
			}
			if ev.Data == "" || ev.Data == "[DONE]" {
				continue
			}
			var se StreamEvent
			if err := json.Unmarshal([]byte(ev.Data), &se); err != nil {
				ch <- StreamEvent{Err: fmt.Errorf("decode dify event: %w", err)}
				return
			}
			ch <- se
		}
	}()
	return ch
}
