package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the authenticated user's profile as cached on the device.
type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	Username          string     `json:"username,omitempty"`
	DisplayName       string     `json:"displayName,omitempty"`
	EmailVerified     bool       `json:"emailVerified"`
	PreferredLanguage string     `json:"preferredLanguage,omitempty"`
	LastLoginAt       *time.Time `json:"lastLoginAt,omitempty"`
}

// ProfileUpdate is a partial profile change. Nil fields are left untouched.
type ProfileUpdate struct {
	Username          *string `json:"username,omitempty"`
	DisplayName       *string `json:"displayName,omitempty"`
	PreferredLanguage *string `json:"preferredLanguage,omitempty"`
	EmailVerified     *bool   `json:"emailVerified,omitempty"`
}

// Validate validates the user before it is cached. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u == nil {
		return errors.New("user is required")
	}
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	return nil
}

// Clone returns a deep copy of u, or nil when u is nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// Apply returns a copy of u with the non-nil fields of p merged in.
func (u *User) Apply(p ProfileUpdate) *User {
	c := u.Clone()
	if c == nil {
		return nil
	}
	if p.Username != nil {
		c.Username = strings.TrimSpace(*p.Username)
	}
	if p.DisplayName != nil {
		c.DisplayName = strings.TrimSpace(*p.DisplayName)
	}
	if p.PreferredLanguage != nil {
		c.PreferredLanguage = strings.TrimSpace(*p.PreferredLanguage)
	}
	if p.EmailVerified != nil {
		c.EmailVerified = *p.EmailVerified
	}
	return c
}

// IsEmpty reports whether the update changes nothing.
func (p ProfileUpdate) IsEmpty() bool {
	return p.Username == nil && p.DisplayName == nil && p.PreferredLanguage == nil && p.EmailVerified == nil
}

// NeedsIdentitySetup reports whether the user still has to pick a username or display name.
func (u *User) NeedsIdentitySetup() bool {
	return u != nil && (u.Username == "" || u.DisplayName == "")
}
