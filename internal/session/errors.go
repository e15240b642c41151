package session

import (
	"context"
	"errors"
	"fmt"

	"authsession/internal/gateway"
	sessiondomain "authsession/internal/session/domain"
)

// Sentinel errors, one per kind. Compare with errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrServerError        = errors.New("server error")
	ErrTokenExpired       = errors.New("session expired")
	ErrRefreshFailed      = errors.New("token refresh failed")
	ErrInvalidState       = errors.New("operation not allowed in current session state")
	ErrStorageFailure     = errors.New("secure storage failure")
	ErrInitialization     = errors.New("session initialization failed")
)

var kindSentinels = map[sessiondomain.ErrorKind]error{
	sessiondomain.KindInvalidCredentials: ErrInvalidCredentials,
	sessiondomain.KindNetworkUnavailable: ErrNetworkUnavailable,
	sessiondomain.KindServerError:        ErrServerError,
	sessiondomain.KindTokenExpired:       ErrTokenExpired,
	sessiondomain.KindRefreshFailed:      ErrRefreshFailed,
	sessiondomain.KindInvalidState:       ErrInvalidState,
	sessiondomain.KindStorageFailure:     ErrStorageFailure,
	sessiondomain.KindInitialization:     ErrInitialization,
}

// Error is returned by Manager operations.
type Error struct {
	Kind sessiondomain.ErrorKind
	Op   string
	Err  error
}

func newError(kind sessiondomain.ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session %s: %s", e.Op, kindSentinels[e.Kind])
	}
	return fmt.Sprintf("session %s: %s: %v", e.Op, kindSentinels[e.Kind], e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of e's kind, so errors.Is(err, ErrInvalidState) works regardless of the cause.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the kind of err, or "" when err is not a session error.
func KindOf(err error) sessiondomain.ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// descriptor converts err into the last-error descriptor exposed on snapshots.
func descriptor(err error, lang string) *sessiondomain.ErrorDescriptor {
	kind := KindOf(err)
	if kind == "" {
		return nil
	}
	return &sessiondomain.ErrorDescriptor{Kind: kind, Message: Message(kind, lang)}
}

// classifyGateway maps a gateway failure from login or signup to an error kind.
func classifyGateway(err error) sessiondomain.ErrorKind {
	switch {
	case errors.Is(err, gateway.ErrInvalidCredentials), errors.Is(err, gateway.ErrUnauthorized), errors.Is(err, gateway.ErrRejected):
		return sessiondomain.KindInvalidCredentials
	case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return sessiondomain.KindNetworkUnavailable
	default:
		return sessiondomain.KindServerError
	}
}
