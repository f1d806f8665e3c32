package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a normalized request failure.
type Kind int

const (
	// KindTransport covers connection, DNS, TLS and timeout failures.
	KindTransport Kind = iota + 1
	// KindInvalidResponse means the transport produced something that is not a usable HTTP response.
	KindInvalidResponse
	// KindServer is a non-2xx status from the backend.
	KindServer
	// KindDecoding means the body was missing or not parseable as the expected type.
	KindDecoding
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindInvalidResponse:
		return "invalid_response"
	case KindServer:
		return "server"
	case KindDecoding:
		return "decoding"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by Client. Every failure mode of a
// request is reduced to one of the four kinds.
type Error struct {
	Kind       Kind
	StatusCode int    // only set for KindServer
	Message    string // human-readable, safe to show to the user
	Cause      error
}

func (e *Error) Error() string {
	if e.Kind == KindServer {
		return e.Message
	}
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Constructors.

// ErrTransport wraps a network-level failure.
func ErrTransport(cause error) *Error {
	return &Error{Kind: KindTransport, Message: "Network error", Cause: cause}
}

// ErrInvalidResponse reports an unusable transport response.
func ErrInvalidResponse(cause error) *Error {
	return &Error{Kind: KindInvalidResponse, Message: "Invalid server response", Cause: cause}
}

// ErrServer reports a structured backend rejection.
func ErrServer(status int, msg string) *Error {
	if msg == "" {
		msg = DefaultServerMessage(status)
	}
	return &Error{Kind: KindServer, StatusCode: status, Message: msg}
}

// ErrDecoding reports a body that does not match the expected type.
func ErrDecoding(cause error) *Error {
	return &Error{Kind: KindDecoding, Message: "Unable to read server response", Cause: cause}
}

// DefaultServerMessage is used when no structured message can be extracted from the body.
func DefaultServerMessage(status int) string {
	return fmt.Sprintf("Request failed with status code %d", status)
}

// AsError returns the *Error in err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// IsKind reports whether err is a normalized error of the given kind.
func IsKind(err error, k Kind) bool {
	e := AsError(err)
	return e != nil && e.Kind == k
}

// StatusCode returns the HTTP status of a Server error, or 0.
func StatusCode(err error) int {
	if e := AsError(err); e != nil && e.Kind == KindServer {
		return e.StatusCode
	}
	return 0
}

// IsUnauthorized reports whether err is Server{401}, the only trigger for a
// session refresh.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}
