package gourdiansession

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// keySalt binds derived keys to this library.
var keySalt = []byte("gourdiansession")

// deriveKey expands secret into a key of the given size using HKDF-SHA256.
// The info string separates keys derived from the same secret for different purposes.
func deriveKey(secret []byte, info string, size int) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: key material must be at least %d bytes", ErrInvalidConfig, MinSecretLength)
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, keySalt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// signingKey validates an HMAC secret and returns it as bytes.
func signingKey(secret string, name string) ([]byte, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: %s must be at least %d bytes", ErrInvalidConfig, name, MinSecretLength)
	}
	return []byte(secret), nil
}
