package output

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gptkit/gptkit-cli/internal/api"
	"github.com/gptkit/gptkit-cli/internal/auth"
)

// Error is a structured error with code, message, and optional hint.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code)
}

const loginHint = "Run: gptkit auth login"

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

func ErrNotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg, HTTPStatus: http.StatusNotFound}
}

func ErrAuth(msg string) *Error {
	return &Error{
		Code:    CodeAuth,
		Message: msg,
		Hint:    loginHint,
	}
}

// ErrNetwork reports a failure below HTTP. The cause text becomes the hint.
func ErrNetwork(msg string, cause error) *Error {
	e := &Error{
		Code:    CodeNetwork,
		Message: msg,
		Cause:   cause,
	}
	if cause != nil {
		e.Hint = cause.Error()
	}
	return e
}

func ErrAPI(status int, msg string) *Error {
	return &Error{
		Code:       CodeAPI,
		Message:    msg,
		HTTPStatus: status,
	}
}

// AsError converts any error into an *Error, mapping normalized request
// failures onto CLI codes.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, auth.ErrNotAuthenticated) {
		e := ErrAuth("Not logged in")
		e.Cause = err
		return e
	}
	if apiErr := api.AsError(err); apiErr != nil {
		return fromAPIError(apiErr, err)
	}
	return &Error{
		Code:    CodeAPI,
		Message: err.Error(),
		Cause:   err,
	}
}

func fromAPIError(apiErr *api.Error, err error) *Error {
	var out *Error
	switch apiErr.Kind {
	case api.KindTransport:
		out = ErrNetwork(apiErr.Message, apiErr.Cause)
	case api.KindInvalidResponse:
		out = ErrAPI(0, apiErr.Message)
	case api.KindDecoding:
		out = &Error{Code: CodeDecoding, Message: apiErr.Message}
	default:
		out = fromStatus(apiErr.StatusCode, apiErr.Message)
	}
	out.Cause = err
	return out
}

func fromStatus(status int, msg string) *Error {
	switch status {
	case http.StatusUnauthorized:
		e := ErrAuth(msg)
		e.HTTPStatus = status
		return e
	case http.StatusForbidden:
		return &Error{Code: CodeForbidden, Message: msg, HTTPStatus: status}
	case http.StatusNotFound:
		return ErrNotFound(msg)
	case http.StatusTooManyRequests:
		return &Error{Code: CodeRateLimit, Message: msg, Hint: "Try again later", HTTPStatus: status}
	default:
		return ErrAPI(status, msg)
	}
}
