package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// PostgresErrorMessage describes SDG store failures.
	PostgresErrorMessage = "database connection error"
	// MalformedRequestMessage is returned when a request or tool call cannot be decoded.
	MalformedRequestMessage = "invalid JSON format"
	// ModelAPIMessage is returned when the language model provider fails.
	ModelAPIMessage = "language model API error"
)

// Kind classifies an AppError so callers can tell a provider outage from a bad request.
type Kind string

const (
	KindConnectivity     Kind = "connectivity"
	KindMalformedRequest Kind = "malformed_request"
	KindModelAPI         Kind = "model_api"
	KindInternal         Kind = "internal"
)

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Kind      Kind
	Err       error
	Status    int
	Message   string
	Retryable bool
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(kind Kind, err error, status int, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Connectivity reports that a backing store could not be reached.
func Connectivity(err error, message string) *AppError {
	return New(KindConnectivity, err, http.StatusServiceUnavailable, message)
}

// MalformedRequest reports undecodable input. It is never retried.
func MalformedRequest(err error) *AppError {
	return New(KindMalformedRequest, err, http.StatusBadRequest, MalformedRequestMessage)
}

// ModelAPI reports a language model failure; retryable marks transient ones.
func ModelAPI(err error, retryable bool) *AppError {
	e := New(KindModelAPI, err, http.StatusBadGateway, ModelAPIMessage)
	e.Retryable = retryable
	return e
}

// Internal wraps anything unexpected.
func Internal(err error) *AppError {
	return New(KindInternal, err, http.StatusInternalServerError, SystemErrorMessage)
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err carries a retryable AppError.
func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Retryable
}
