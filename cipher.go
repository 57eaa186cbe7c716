package gourdiansession

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	cipherVersion byte = 1
	cipherInfo         = "gourdiansession payload v1"
)

// cipherAAD is authenticated with every payload.
var cipherAAD = []byte("gourdiansession.SessionPayload")

// PayloadCipher seals and opens session payloads.
type PayloadCipher interface {
	// Encrypt serializes and seals payload into an opaque string.
	Encrypt(payload *SessionPayload) (string, error)

	// Decrypt opens ciphertext. It returns either a complete payload or an error
	// wrapping ErrPayloadDecryption, never partial data.
	Decrypt(ciphertext string) (*SessionPayload, error)
}

// AEADCipher implements PayloadCipher with XChaCha20-Poly1305.
//
// Wire format: base64url(version || 24-byte nonce || sealed JSON).
type AEADCipher struct {
	aead cipher.AEAD
}

var _ PayloadCipher = (*AEADCipher)(nil)

// NewPayloadCipher derives the payload key from secret and returns a ready cipher.
// The secret must be at least 32 bytes.
func NewPayloadCipher(secret string) (*AEADCipher, error) {
	key, err := deriveKey([]byte(secret), cipherInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payload cipher: %w", err)
	}
	return &AEADCipher{aead: aead}, nil
}

// Encrypt implements PayloadCipher.
func (c *AEADCipher) Encrypt(payload *SessionPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload cannot be nil")
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	buf := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	buf[0] = cipherVersion
	if _, err := rand.Read(buf[1:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(buf, buf[1:], plaintext, cipherAAD)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt implements PayloadCipher.
func (c *AEADCipher) Decrypt(ciphertext string) (*SessionPayload, error) {
	raw, err := base64.RawURLEncoding.Strict().DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed encoding", ErrPayloadDecryption)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < 1+nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrPayloadDecryption)
	}
	if raw[0] != cipherVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrPayloadDecryption, raw[0])
	}

	nonce := raw[1 : 1+nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, raw[1+nonceSize:], cipherAAD)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrPayloadDecryption)
	}

	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.DisallowUnknownFields()
	var payload SessionPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: malformed payload", ErrPayloadDecryption)
	}
	if payload.SessionID == "" || payload.LastActivity <= 0 {
		return nil, fmt.Errorf("%w: incomplete payload", ErrPayloadDecryption)
	}
	return &payload, nil
}
