package security

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken returns a SHA-256 hash of the token string, hex-encoded.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenFingerprint returns a short, non-reversible identifier for token suitable for logs.
// Returns "-" for an empty token.
func TokenFingerprint(token string) string {
	if token == "" {
		return "-"
	}
	return HashToken(token)[:12]
}
