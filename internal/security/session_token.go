package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// sessionTokenBytes is the entropy of a session token before encoding.
const sessionTokenBytes = 32

// NewSessionToken returns a random URL-safe opaque bearer token.
// Only its hash (HashSessionToken) is persisted.
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("security: generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSessionToken returns the hex SHA-256 of token, the value stored in sessions.token_hash.
func HashSessionToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// SessionTokenHashEqual reports in constant time whether token hashes to storedHash.
func SessionTokenHashEqual(token, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSessionToken(token)), []byte(storedHash)) == 1
}
