// File: gourdiansession.repository.go

package gourdiansession

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RevocationStore is an optional denylist of session ids.
//
// Tokens stay self-contained; the store only lets a host end a session before its refresh
// token expires (logout everywhere). Entries must outlive the refresh token they shadow, so
// RevokeSession is called with the refresh token's remaining lifetime as ttl.
//
// Implementations:
//   - MemoryRevocationStore: single-instance deployments and tests
//   - RedisRevocationStore: shared denylist across instances
//   - GormRevocationStore: SQL-backed denylist
type RevocationStore interface {
	// RevokeSession denylists sessionID for ttl.
	RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error

	// IsSessionRevoked reports whether sessionID is currently denylisted.
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

// hashSessionID returns the storage key for a session id. Stores never hold the raw value.
func hashSessionID(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:])
}
