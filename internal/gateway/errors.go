package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors; the session core maps them to its error kinds.
var (
	// ErrInvalidCredentials is returned when login or registration is refused (401/403).
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned when a refresh or logout token is rejected (401/403).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable is returned when the API cannot be reached or the call timed out.
	ErrUnavailable = errors.New("auth service unavailable")
	// ErrServer is returned for 5xx responses.
	ErrServer = errors.New("auth service error")
	// ErrRejected is returned for other 4xx responses (validation, conflict).
	ErrRejected = errors.New("request rejected")
	// ErrMalformedResponse is returned when a success response cannot be decoded or lacks tokens.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError carries the HTTP status and server message of a failed call.
type StatusError struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Err.Error()
	}
	if e.Status == 0 {
		return fmt.Sprintf("gateway %s: %s", e.Op, msg)
	}
	return fmt.Sprintf("gateway %s: %d: %s", e.Op, e.Status, msg)
}

func (e *StatusError) Unwrap() error { return e.Err }
