package security

import (
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testSigningKey signs tokens minted for unit tests only. Do not use in production.
var testSigningKey = []byte("authsession-test-signing-key")

// TestMasterKeyHex is a fixed master key for unit tests only.
const TestMasterKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// TestMasterKey returns the decoded TestMasterKeyHex.
func TestMasterKey() []byte {
	k, _ := hex.DecodeString(TestMasterKeyHex)
	return k
}

// NewTestToken returns an HS256 access token for subject that expires at exp.
// For unit tests only.
func NewTestToken(subject string, exp time.Time) string {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(exp.Add(-15 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		panic(err)
	}
	return s
}

// NewTestTokenWithoutExpiry returns an HS256 token that has no exp claim. For unit tests only.
func NewTestTokenWithoutExpiry(subject string) string {
	claims := jwt.RegisteredClaims{Subject: subject}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		panic(err)
	}
	return s
}
