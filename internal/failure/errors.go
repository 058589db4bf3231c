// Package failure classifies failed calls and defines the error taxonomy
// shared by the dispatcher, the refresh coordinator, and session teardown.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Session-level sentinels. Use errors.Is(err, failure.ErrRefreshFailed) to check.
var (
	ErrAuthExpired        = errors.New("failure: session expired")
	ErrInvalidCredentials = errors.New("failure: invalid credentials")
	ErrSignatureInvalid   = errors.New("failure: token signature invalid")
	ErrRefreshFailed      = errors.New("failure: token refresh failed")
)

// Status sentinels for HTTP status code classification.
var (
	ErrBadRequest   = errors.New("failure: bad request")
	ErrUnauthorized = errors.New("failure: unauthorized")
	ErrForbidden    = errors.New("failure: forbidden")
	ErrNotFound     = errors.New("failure: not found")
	ErrConflict     = errors.New("failure: conflict")
	ErrThrottled    = errors.New("failure: throttled")
	ErrServerError  = errors.New("failure: server error")
)

// CallError is the metadata of a call that reached the server and failed.
// It wraps a status sentinel for errors.Is().
type CallError struct {
	OperationID string
	StatusCode  int
	RequestID   string
	Message     string
	Err         error
}

func (e *CallError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: HTTP %d (request-id: %s): %s", e.OperationID, e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("%s: HTTP %d: %s", e.OperationID, e.StatusCode, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// NewCallError builds a CallError with the sentinel matching status.
func NewCallError(operationID string, status int, requestID, message string) *CallError {
	return &CallError{
		OperationID: operationID,
		StatusCode:  status,
		RequestID:   requestID,
		Message:     message,
		Err:         classifyStatus(status),
	}
}

// SessionError pairs a terminal session sentinel with the failure that
// caused it. errors.Is matches both the sentinel and the cause chain.
type SessionError struct {
	Kind  error
	Cause error
}

func (e *SessionError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}

	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

func (e *SessionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}

	return []error{e.Kind, e.Cause}
}

// RefreshFailed wraps cause so that errors.Is(err, ErrRefreshFailed) holds.
func RefreshFailed(cause error) error {
	return &SessionError{Kind: ErrRefreshFailed, Cause: cause}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}
