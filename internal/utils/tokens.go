package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// MinSecretLength is the shortest configured cookie secret accepted.
const MinSecretLength = 32

// GenerateSecureToken creates a cryptographically secure random token.
func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// CookieSecret returns the configured signing secret, or a random one when none is configured.
// A generated secret dies with the process, and every cookie session with it.
func CookieSecret(configured string) (secret []byte, generated bool, err error) {
	if configured != "" {
		if len(configured) < MinSecretLength {
			return nil, false, fmt.Errorf("session secret must be at least %d bytes, got %d", MinSecretLength, len(configured))
		}
		return []byte(configured), false, nil
	}
	token, err := GenerateSecureToken(MinSecretLength)
	if err != nil {
		return nil, false, fmt.Errorf("generate session secret: %w", err)
	}
	return []byte(token), true, nil
}
