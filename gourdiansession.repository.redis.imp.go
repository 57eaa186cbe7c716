// File: gourdiansession.repository.redis.imp.go

package gourdiansession

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedSessionPrefix = "gourdiansession:revoked:"

// revokeScript sets KEYS[1] with a PX of ARGV[1] unless the key already outlives it.
// It returns 1 when the key was written and 0 when the existing entry was kept.
const revokeScript = `
local current = redis.call('PTTL', KEYS[1])
local ttl = tonumber(ARGV[1])
if current > ttl then
  return 0
end
redis.call('SET', KEYS[1], '1', 'PX', ttl)
return 1
`

var revokeLua = redis.NewScript(revokeScript)

// RedisRevocationStore keeps the denylist in Redis. Entries expire through Redis TTLs,
// so no cleanup job is needed.
type RedisRevocationStore struct {
	client redis.UniversalClient
}

// NewRedisRevocationStore creates a new Redis-based revocation store and checks connectivity.
func NewRedisRevocationStore(ctx context.Context, client redis.UniversalClient) (*RedisRevocationStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisRevocationStore{client: client}, nil
}

// RevokeSession implements RevocationStore.
func (r *RedisRevocationStore) RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	key := revokedSessionPrefix + hashSessionID(sessionID)
	ms := max(ttl.Milliseconds(), 1)

	// The longer of the existing and requested lifetimes wins, even under concurrent revokes.
	if err := revokeLua.Run(ctx, r.client, []string{key}, ms).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// IsSessionRevoked implements RevocationStore.
func (r *RedisRevocationStore) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("session ID cannot be empty")
	}

	exists, err := r.client.Exists(ctx, revokedSessionPrefix+hashSessionID(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}
	return exists > 0, nil
}

// RemainingTTL returns how long sessionID stays revoked, or zero when it is not revoked.
func (r *RedisRevocationStore) RemainingTTL(ctx context.Context, sessionID string) (time.Duration, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("session ID cannot be empty")
	}

	ttl, err := r.client.PTTL(ctx, revokedSessionPrefix+hashSessionID(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}

	// Redis returns negative values for keys that don't exist or have no expiry
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
