package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashPasscode returns the lowercase hex SHA-256 of passcode.
func HashPasscode(passcode string) string {
	sum := sha256.Sum256([]byte(passcode))
	return hex.EncodeToString(sum[:])
}

// HashMatches compares passcode against an expected hex digest, ignoring
// case and surrounding whitespace in the digest.
func HashMatches(passcode, expected string) bool {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashPasscode(passcode)), []byte(expected)) == 1
}
