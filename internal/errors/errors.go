package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedBody      = errors.New("malformed request body")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrClientGone         = errors.New("client disconnected")
)

// ErrorType is the discriminator of an Anthropic error body.
type ErrorType string

const (
	InvalidRequest ErrorType = "invalid_request_error"
	Authentication ErrorType = "authentication_error"
	Permission     ErrorType = "permission_error"
	RateLimit      ErrorType = "rate_limit_error"
	API            ErrorType = "api_error"
)

const fallbackMessage = "Unexpected error"

// StatusCoder is implemented by failures that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Error is a failure that has already been classified.
type Error struct {
	Status  int
	Type    ErrorType
	Message string

	cause error
}

// New returns a classified error.
func New(status int, typ ErrorType, message string) *Error {
	return &Error{Status: status, Type: typ, Message: message}
}

// InvalidRequestf is shorthand for a 400 invalid_request_error.
func InvalidRequestf(message string) *Error {
	return New(http.StatusBadRequest, InvalidRequest, message)
}

// Malformed is the 400 answer for a body that is not JSON or does not fit
// the request schema. It wraps ErrMalformedBody and cause.
func Malformed(cause error) *Error {
	e := InvalidRequestf("Invalid request body")
	e.cause = ErrMalformedBody
	if cause != nil {
		e.cause = fmt.Errorf("%w: %w", ErrMalformedBody, cause)
	}
	return e
}

func (e *Error) Error() string   { return e.Message }
func (e *Error) StatusCode() int { return e.Status }
func (e *Error) Unwrap() error   { return e.cause }

// Mapped is the outcome of Classify: an HTTP status plus the error body fields.
type Mapped struct {
	Status  int
	Type    ErrorType
	Message string
}

// Body is the Anthropic error document.
type Body struct {
	Type  string     `json:"type"`
	Error BodyDetail `json:"error"`
}

// BodyDetail is the nested error object of Body.
type BodyDetail struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}

// Body renders m as an Anthropic error document.
func (m Mapped) Body() Body {
	return Body{Type: "error", Error: BodyDetail{Type: m.Type, Message: m.Message}}
}

// StatusToType maps an HTTP status to its error type. Statuses outside the
// fixed table collapse to api_error with status 500.
func StatusToType(status int) (int, ErrorType) {
	switch status {
	case http.StatusBadRequest:
		return status, InvalidRequest
	case http.StatusUnauthorized:
		return status, Authentication
	case http.StatusForbidden:
		return status, Permission
	case http.StatusTooManyRequests:
		return status, RateLimit
	default:
		return http.StatusInternalServerError, API
	}
}

// Classify maps any failure value to a status, error type and message.
// It accepts non-error values (e.g. recovered panics) and never panics itself.
func Classify(failure any) Mapped {
	err, ok := failure.(error)
	if !ok || err == nil {
		return Mapped{Status: http.StatusInternalServerError, Type: API, Message: fallbackMessage}
	}

	message := safeMessage(err)
	if message == "" {
		message = fallbackMessage
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := safeStatus(sc); code != 0 {
			status, typ := StatusToType(code)
			return Mapped{Status: status, Type: typ, Message: message}
		}
	}

	return Mapped{Status: http.StatusInternalServerError, Type: API, Message: message}
}

func safeMessage(err error) (msg string) {
	defer func() {
		if recover() != nil {
			msg = ""
		}
	}()
	return err.Error()
}

func safeStatus(sc StatusCoder) (code int) {
	defer func() {
		if recover() != nil {
			code = 0
		}
	}()
	return sc.StatusCode()
}

// WriteJSONError writes an Anthropic error body with the given status.
func WriteJSONError(w http.ResponseWriter, m Mapped) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(m.Status)
	_ = json.NewEncoder(w).Encode(m.Body())
}
