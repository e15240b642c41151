// Package gateway is the client for the remote authentication API.
//
// Client is the contract the session core consumes; HTTPClient implements it
// over JSON/HTTP. Failures are reported with the sentinel errors in errors.go
// so callers can classify them without inspecting transport details.
package gateway

import (
	"context"

	devicedomain "authsession/internal/device/domain"
	userdomain "authsession/internal/user/domain"
)

// LoginRequest carries credentials and the device they are used from.
type LoginRequest struct {
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Device   devicedomain.Info `json:"device"`
}

// LoginResponse is the result of a successful login.
type LoginResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	User         *userdomain.User `json:"user"`
	SessionID    string           `json:"sessionId"`
	IsNewUser    bool             `json:"isNewUser"`
	NextAction   string           `json:"nextAction,omitempty"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email             string            `json:"email"`
	Password          string            `json:"password"`
	Username          string            `json:"username,omitempty"`
	DisplayName       string            `json:"displayName,omitempty"`
	PreferredLanguage string            `json:"preferredLanguage,omitempty"`
	Device            devicedomain.Info `json:"device"`
}

// RegisterResponse is the result of a successful registration.
type RegisterResponse struct {
	AccessToken               string           `json:"accessToken"`
	RefreshToken              string           `json:"refreshToken"`
	User                      *userdomain.User `json:"user"`
	SessionID                 string           `json:"sessionId"`
	RequiresEmailVerification bool             `json:"requiresEmailVerification"`
	NextAction                string           `json:"nextAction,omitempty"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	DeviceID     string `json:"deviceId"`
}

// RefreshResponse carries the rotated pair. User is set only when the server sends an updated profile.
type RefreshResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	User         *userdomain.User `json:"user,omitempty"`
}

// LogoutRequest revokes the session server-side. AccessToken authorizes the call.
type LogoutRequest struct {
	AccessToken string `json:"-"`
	DeviceID    string `json:"deviceId"`
	AllDevices  bool   `json:"allDevices"`
}

// Client is the remote authentication API.
type Client interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*RefreshResponse, error)
	Logout(ctx context.Context, req LogoutRequest) error
}
