package keys

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// TokenPrefix tags every minted key.
const TokenPrefix = "sk_"

// Mint returns a new token carrying 32 bytes of randomness.
func Mint() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// Mask hides all but the edges of a token for logs and listings.
func Mask(token string) string {
	if len(token) > 8 {
		return token[:6] + "..." + token[len(token)-4:]
	}
	return "***"
}
