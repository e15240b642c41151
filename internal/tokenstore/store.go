// Package tokenstore persists auth material and device state encrypted at rest.
//
// Store is the contract the session core consumes. SecureStore implements it
// on top of any Backend that can write several keys atomically, so the cached
// user profile is always written in the same operation as the tokens that
// authorize it.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"

	userdomain "authsession/internal/user/domain"
)

// Keys used by the session core.
const (
	KeyAccessToken  = "auth.access_token"
	KeyRefreshToken = "auth.refresh_token"
	KeyUser         = "auth.user"
	KeyDeviceID     = "device.id"
)

var authKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

var (
	// ErrReservedKey is returned when generic item access targets auth material.
	ErrReservedKey = errors.New("tokenstore: key is reserved for auth material")
	// ErrIncomplete is returned when stored auth material is partially present.
	ErrIncomplete = errors.New("tokenstore: stored session is incomplete")
	// ErrCorrupt is returned when a stored value cannot be opened or decoded.
	ErrCorrupt = errors.New("tokenstore: stored value is corrupt")
	// ErrInvalidRecord is returned when StoreTokens is called without both tokens and a valid user.
	ErrInvalidRecord = errors.New("tokenstore: record requires access token, refresh token and user")
)

// IsCorrupt reports whether err means the stored auth material is unusable, as opposed to the
// backend failing to serve it.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt) || errors.Is(err, ErrIncomplete)
}

// Record is the unit of auth persistence: tokens plus the profile they authorize.
type Record struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	User         *userdomain.User `json:"user"`
}

// Store is the secure token store contract.
type Store interface {
	// AccessToken returns the stored access token, or "" when absent.
	AccessToken(ctx context.Context) (string, error)
	// RefreshToken returns the stored refresh token, or "" when absent.
	RefreshToken(ctx context.Context) (string, error)
	// User returns the cached profile, or nil when absent.
	User(ctx context.Context) (*userdomain.User, error)
	// Load returns the full auth record, nil when nothing is stored, or ErrIncomplete.
	Load(ctx context.Context) (*Record, error)
	// StoreTokens atomically writes tokens and profile.
	StoreTokens(ctx context.Context, rec Record) error
	// ClearTokens removes all auth material. Non-auth items (device id) are kept.
	ClearTokens(ctx context.Context) error

	// GetItem returns a non-auth item. ok is false when absent.
	GetItem(ctx context.Context, key string) (value []byte, ok bool, err error)
	// SetItem writes a non-auth item.
	SetItem(ctx context.Context, key string, value []byte) error
	// RemoveItem deletes a non-auth item; missing keys are not an error.
	RemoveItem(ctx context.Context, key string) error
}

// Backend is raw key/value persistence. PutAll must be atomic: either every entry is written or none.
type Backend interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	PutAll(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Get reads a JSON item from s into a value of type T.
func Get[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := s.GetItem(ctx, key)
	if err != nil || !ok {
		return out, ok, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

// Set writes v as a JSON item.
func Set[T any](ctx context.Context, s Store, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.SetItem(ctx, key, raw)
}

func isAuthKey(key string) bool {
	for _, k := range authKeys {
		if k == key {
			return true
		}
	}
	return false
}
