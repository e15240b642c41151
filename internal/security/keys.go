package security

import (
	"encoding/hex"
	"errors"
	"os"
	"strings"
)

// MasterKeySize is the length in bytes of the key protecting the token store.
const MasterKeySize = 32

// ErrInvalidKey is returned when key material is missing or has the wrong size.
var ErrInvalidKey = errors.New("invalid key")

// LoadKeyMaterial returns s when it looks like inline hex; otherwise reads the file at path s.
func LoadKeyMaterial(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if isHex(s) {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

// ParseMasterKey parses a 32-byte master key. s may be inline hex or a path to a file
// holding either hex text or the raw 32 bytes.
func ParseMasterKey(s string) ([]byte, error) {
	material, err := LoadKeyMaterial(s)
	if err != nil {
		return nil, err
	}
	if len(material) == MasterKeySize {
		return material, nil
	}
	text := strings.TrimSpace(string(material))
	key, err := hex.DecodeString(text)
	if err != nil || len(key) != MasterKeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func isHex(s string) bool {
	if len(s) != 2*MasterKeySize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
