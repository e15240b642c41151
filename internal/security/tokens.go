package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or carries no usable expiry claim.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds the JWT claims the client reads from an access token.
// Signatures are never verified here: the expiry check only decides when to
// refresh, the server validates every token it receives.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id,omitempty"`
}

var unverifiedParser = jwt.NewParser()

// ParseAccessClaims decodes the claims of tokenString without verifying its signature.
func ParseAccessClaims(tokenString string) (*AccessClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims := &AccessClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of tokenString. Returns ErrInvalidToken if the
// token cannot be decoded or has no exp claim.
func ExpiresAt(tokenString string) (time.Time, error) {
	claims, err := ParseAccessClaims(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || exp.Time.IsZero() {
		return time.Time{}, ErrInvalidToken
	}
	return exp.Time, nil
}

// IsExpired reports whether tokenString is expired at now. Undecodable tokens count as expired.
func IsExpired(tokenString string, now time.Time) bool {
	exp, err := ExpiresAt(tokenString)
	if err != nil {
		return true
	}
	return !exp.After(now)
}

// IsExpiringSoon reports whether tokenString has at most leeway of lifetime left at now.
// Expired and undecodable tokens are expiring soon.
func IsExpiringSoon(tokenString string, now time.Time, leeway time.Duration) bool {
	exp, err := ExpiresAt(tokenString)
	if err != nil {
		return true
	}
	return exp.Sub(now) <= leeway
}
