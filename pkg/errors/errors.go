package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// ErrNoRules is returned when a request must be signed but the identity has
// no header rules loaded.
var ErrNoRules = &Error{Type: ErrorTypeConfig, Message: "no header rules loaded"}

// Error is the uniform failure returned by every remote call. Path is the
// endpoint that failed and Code the HTTP status, zero when no response was
// received.
type Error struct {
	Type    ErrorType
	Path    string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Path != "" {
		return fmt.Sprintf("%s error (code %d) at %s: %s", e.Type, e.Code, e.Path, msg)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two errors of the same type and message, so callers can test
// against sentinels like ErrNoRules after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == e.Message && t.Path == "" && t.Code == 0
}

// New builds an error of the given type.
func New(t ErrorType, path, message string, err error) *Error {
	return &Error{Type: t, Path: path, Message: message, Err: err}
}

// FromStatus classifies an unsuccessful HTTP status for path.
func FromStatus(path string, code int) *Error {
	return &Error{
		Type:    TypeForStatus(code),
		Path:    path,
		Code:    code,
		Message: http.StatusText(code),
	}
}

// TypeForStatus maps an HTTP status code to an ErrorType
func TypeForStatus(code int) ErrorType {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorTypeAuth
	case code == http.StatusNotFound:
		return ErrorTypeNotFound
	case code >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsType reports whether err carries the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode reports whether the transport should retry a
// response with this status.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
