package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode represents a unified error code across the federation layer.
type ErrorCode string

const (
	ErrInvalidRequest         ErrorCode = "INVALID_REQUEST"
	ErrNotFound               ErrorCode = "NOT_FOUND"
	ErrBackendTransient       ErrorCode = "BACKEND_TRANSIENT"
	ErrBackendAuth            ErrorCode = "BACKEND_AUTH"
	ErrBackendRateLimited     ErrorCode = "BACKEND_RATE_LIMITED"
	ErrAllBackendsUnavailable ErrorCode = "ALL_BACKENDS_UNAVAILABLE"
	ErrConfiguration          ErrorCode = "CONFIGURATION_ERROR"
	ErrInternal               ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
// Messages and reasons never carry credentials.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Instance   string    `json:"instance,omitempty"`

	// Reasons maps instance id to the failure description when every
	// backend was unavailable.
	Reasons map[string]string `json:"reasons,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if len(e.Reasons) > 0 {
		ids := make([]string, 0, len(e.Reasons))
		for id := range e.Reasons {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, id+": "+e.Reasons[id])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, "; "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewAllBackendsError aggregates per-instance failure reasons into a single
// terminal error.
func NewAllBackendsError(reasons map[string]string) *Error {
	return &Error{
		Code:    ErrAllBackendsUnavailable,
		Message: "no backend instance could serve the request",
		Reasons: reasons,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithInstance sets the instance id the error originated from.
func (e *Error) WithInstance(instance string) *Error {
	e.Instance = instance
	return e
}

// IsRetryable checks if an error (possibly wrapped) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ErrorReasons extracts the per-instance failure reasons, if any.
func ErrorReasons(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reasons
	}
	return nil
}
