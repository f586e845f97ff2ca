package adapter

import (
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/httputil"
)

// ErrStreamClosed is returned when writing to a stream that already ended.
var ErrStreamClosed = errors.New("stream already terminated")

type streamState int

const (
	stateNew streamState = iota
	stateStart
	stateStreaming
	stateStopped
	stateErrored
)

func (s streamState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateStart:
		return "start"
	case stateStreaming:
		return "streaming"
	case stateStopped:
		return "stopped"
	default:
		return "errored"
	}
}

// Stream encodes one reply as Server-Sent Events. Frames are written in the
// order start, deltas, then exactly one of stop or error. Nothing is written
// after the terminal frame.
type Stream struct {
	w       http.ResponseWriter
	dialect Dialect
	msg     Message
	state   streamState
}

// NewStream prepares a stream; nothing is written until Start.
func NewStream(w http.ResponseWriter, d Dialect, msg Message) *Stream {
	return &Stream{w: w, dialect: d, msg: msg}
}

// Start commits the 200 status and the SSE headers and writes the start frames.
func (s *Stream) Start() error {
	if s.state != stateNew {
		return fmt.Errorf("start in state %s: %w", s.state, ErrStreamClosed)
	}
	httputil.SetSSEHeaders(s.w)
	s.w.WriteHeader(http.StatusOK)
	s.state = stateStart
	return s.write(s.dialect.StartFrames(s.msg))
}

// Delta writes one text fragment.
func (s *Stream) Delta(text string) error {
	if s.state != stateStart && s.state != stateStreaming {
		return fmt.Errorf("delta in state %s: %w", s.state, ErrStreamClosed)
	}
	s.state = stateStreaming
	return s.write(s.dialect.DeltaFrames(s.msg, text))
}

// Stop writes the terminal success frames.
func (s *Stream) Stop() error {
	if s.state != stateStart && s.state != stateStreaming {
		return fmt.Errorf("stop in state %s: %w", s.state, ErrStreamClosed)
	}
	s.state = stateStopped
	return s.write(s.dialect.StopFrames(s.msg))
}

// Fail writes the terminal error frame.
func (s *Stream) Fail(m apierrors.Mapped) error {
	if s.state != stateStart && s.state != stateStreaming {
		return fmt.Errorf("fail in state %s: %w", s.state, ErrStreamClosed)
	}
	s.state = stateErrored
	return s.write(s.dialect.ErrorFrames(s.msg, m))
}

// Terminated reports whether a stop or error frame was written.
func (s *Stream) Terminated() bool {
	return s.state == stateStopped || s.state == stateErrored
}

// write marks write failures with apierrors.ErrClientGone.
func (s *Stream) write(frames []httputil.Frame) error {
	if err := httputil.WriteFrames(s.w, frames...); err != nil {
		return fmt.Errorf("%w: %w", apierrors.ErrClientGone, err)
	}
	return nil
}
