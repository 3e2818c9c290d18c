package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes of entropy per token; encodes to 43 URL-safe characters.
const tokenBytes = 32

// NewToken returns a URL-safe random token from crypto/rand. Used for reset
// tokens and session ids.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
