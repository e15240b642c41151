package domain

import (
	"time"

	userdomain "authsession/internal/user/domain"
)

// Status is the authoritative session state.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
	StatusRefreshing      Status = "refreshing"
	StatusFailed          Status = "failed"
)

// HasTokens reports whether tokens must be present in this status.
func (s Status) HasTokens() bool {
	return s == StatusAuthenticated || s == StatusRefreshing
}

// TokenPair holds the bearer credentials of an authenticated session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ErrorKind classifies failures returned across the session facade.
type ErrorKind string

const (
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindNetworkUnavailable ErrorKind = "network_unavailable"
	KindServerError        ErrorKind = "server_error"
	KindTokenExpired       ErrorKind = "token_expired"
	KindRefreshFailed      ErrorKind = "refresh_failed"
	KindInvalidState       ErrorKind = "invalid_state"
	KindStorageFailure     ErrorKind = "storage_failure"
	KindInitialization     ErrorKind = "initialization_error"
)

// ErrorDescriptor is the last error recorded on the session; cleared when the next operation starts.
type ErrorDescriptor struct {
	Kind    ErrorKind
	Message string
}

// Snapshot is a read-only copy of the session for rendering.
type Snapshot struct {
	Status       Status
	User         *userdomain.User
	Tokens       *TokenPair
	LastActivity time.Time
	DeviceID     string
	Error        *ErrorDescriptor
}

// Authenticated reports whether the snapshot carries a usable session.
func (s Snapshot) Authenticated() bool {
	return s.Status.HasTokens() && s.Tokens != nil
}
