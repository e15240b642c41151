package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"

	"authsession/internal/security"
	userdomain "authsession/internal/user/domain"
)

// SecureStore implements Store over a Backend, sealing every value with the store key.
type SecureStore struct {
	backend Backend
	sealer  *security.Sealer
}

// NewSecureStore returns a SecureStore that encrypts values written to backend with a key derived from masterKey.
func NewSecureStore(backend Backend, masterKey []byte) (*SecureStore, error) {
	sealer, err := security.NewSealer(masterKey, "tokenstore")
	if err != nil {
		return nil, err
	}
	return &SecureStore{backend: backend, sealer: sealer}, nil
}

func (s *SecureStore) get(ctx context.Context, key string) ([]byte, bool, error) {
	sealed, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("tokenstore: get %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	plain, err := s.sealer.Open(sealed, []byte(key))
	if err != nil {
		return nil, false, fmt.Errorf("%w: open %s: %w", ErrCorrupt, key, err)
	}
	return plain, true, nil
}

func (s *SecureStore) seal(key string, plain []byte) ([]byte, error) {
	sealed, err := s.sealer.Seal(plain, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("tokenstore: seal %s: %w", key, err)
	}
	return sealed, nil
}

// AccessToken returns the stored access token, or "" when absent.
func (s *SecureStore) AccessToken(ctx context.Context) (string, error) {
	v, _, err := s.get(ctx, KeyAccessToken)
	return string(v), err
}

// RefreshToken returns the stored refresh token, or "" when absent.
func (s *SecureStore) RefreshToken(ctx context.Context) (string, error) {
	v, _, err := s.get(ctx, KeyRefreshToken)
	return string(v), err
}

// User returns the cached profile, or nil when absent.
func (s *SecureStore) User(ctx context.Context) (*userdomain.User, error) {
	raw, ok, err := s.get(ctx, KeyUser)
	if err != nil || !ok {
		return nil, err
	}
	var u userdomain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("%w: decode user: %w", ErrCorrupt, err)
	}
	return &u, nil
}

// Load returns the stored record. Returns (nil, nil) when no auth material is stored and
// ErrIncomplete when only part of it is present.
func (s *SecureStore) Load(ctx context.Context) (*Record, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	refresh, err := s.RefreshToken(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.User(ctx)
	if err != nil {
		return nil, err
	}
	if access == "" && refresh == "" && u == nil {
		return nil, nil
	}
	if access == "" || refresh == "" || u == nil {
		return nil, ErrIncomplete
	}
	return &Record{AccessToken: access, RefreshToken: refresh, User: u}, nil
}

// StoreTokens seals tokens and profile and writes them in one backend operation.
func (s *SecureStore) StoreTokens(ctx context.Context, rec Record) error {
	if rec.AccessToken == "" || rec.RefreshToken == "" || rec.User.Validate() != nil {
		return ErrInvalidRecord
	}
	userJSON, err := json.Marshal(rec.User)
	if err != nil {
		return fmt.Errorf("tokenstore: encode user: %w", err)
	}
	plain := map[string][]byte{
		KeyAccessToken:  []byte(rec.AccessToken),
		KeyRefreshToken: []byte(rec.RefreshToken),
		KeyUser:         userJSON,
	}
	entries := make(map[string][]byte, len(plain))
	for k, v := range plain {
		sealed, err := s.seal(k, v)
		if err != nil {
			return err
		}
		entries[k] = sealed
	}
	if err := s.backend.PutAll(ctx, entries); err != nil {
		return fmt.Errorf("tokenstore: store tokens: %w", err)
	}
	return nil
}

// ClearTokens removes tokens and profile. The device id survives.
func (s *SecureStore) ClearTokens(ctx context.Context) error {
	if err := s.backend.Delete(ctx, authKeys...); err != nil {
		return fmt.Errorf("tokenstore: clear tokens: %w", err)
	}
	return nil
}

// GetItem returns a non-auth item.
func (s *SecureStore) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	if isAuthKey(key) {
		return nil, false, ErrReservedKey
	}
	return s.get(ctx, key)
}

// SetItem writes a non-auth item.
func (s *SecureStore) SetItem(ctx context.Context, key string, value []byte) error {
	if isAuthKey(key) {
		return ErrReservedKey
	}
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	if err := s.backend.PutAll(ctx, map[string][]byte{key: sealed}); err != nil {
		return fmt.Errorf("tokenstore: set %s: %w", key, err)
	}
	return nil
}

// RemoveItem deletes a non-auth item.
func (s *SecureStore) RemoveItem(ctx context.Context, key string) error {
	if isAuthKey(key) {
		return ErrReservedKey
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("tokenstore: remove %s: %w", key, err)
	}
	return nil
}
