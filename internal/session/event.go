package session

import (
	"math"
	"strconv"
	"strings"

	"github.com/zhengjr9/claude-gateway/internal/backend"
)

// Kind is the closed set of backend events the gateway reacts to.
type Kind int

const (
	KindUnknown Kind = iota
	KindDelta
	KindMessage
	KindIdle
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindMessage:
		return "message"
	case KindIdle:
		return "idle"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a typed view of a backend.RawEvent.
type Event struct {
	Kind Kind
	// Text holds the fragment (KindDelta), the final text (KindMessage) or
	// the failure message (KindError).
	Text string
	// Status is the upstream status of a KindError event, zero if absent.
	Status int
}

const defaultErrorMessage = "Backend session error"

// Decode maps a raw event to an Event. Unrecognised types and recognised
// types with an unexpected payload shape decode as KindUnknown; empty deltas
// are treated the same way.
func Decode(ev backend.RawEvent) Event {
	switch ev.Type {
	case backend.EventMessageDelta:
		text, ok := ev.Data["deltaContent"].(string)
		if !ok || text == "" {
			return Event{}
		}
		return Event{Kind: KindDelta, Text: text}
	case backend.EventMessage:
		text, ok := ev.Data["content"].(string)
		if !ok {
			return Event{}
		}
		return Event{Kind: KindMessage, Text: text}
	case backend.EventIdle:
		return Event{Kind: KindIdle}
	case backend.EventError:
		msg, _ := ev.Data["message"].(string)
		if msg == "" {
			msg = defaultErrorMessage
		}
		return Event{Kind: KindError, Text: msg, Status: number(ev.Data["statusCode"])}
	default:
		return Event{}
	}
}

// number accepts finite numbers and numeric strings; anything else is zero.
func number(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return int(f)
	default:
		return 0
	}
}
