// File: gourdiansession.repository.inmemory.imp.go

package gourdiansession

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRevocationStore is an in-memory implementation of RevocationStore.
// Suitable for development, testing, or single-instance deployments.
type MemoryRevocationStore struct {
	mu              sync.RWMutex
	revoked         map[string]time.Time
	clock           Clock
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// NewMemoryRevocationStore creates a new in-memory revocation store.
// cleanupInterval determines how often expired entries are removed (default: 5 minutes).
// A nil clock uses the wall clock.
func NewMemoryRevocationStore(cleanupInterval time.Duration, clock Clock) *MemoryRevocationStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	if clock == nil {
		clock = SystemClock{}
	}

	store := &MemoryRevocationStore{
		revoked:         make(map[string]time.Time),
		clock:           clock,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go store.periodicCleanup()

	return store
}

// RevokeSession implements RevocationStore.
func (m *MemoryRevocationStore) RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	key := hashSessionID(sessionID)
	expiresAt := m.clock.Now().Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Never shorten an existing entry.
	if current, ok := m.revoked[key]; ok && current.After(expiresAt) {
		return nil
	}
	m.revoked[key] = expiresAt
	return nil
}

// IsSessionRevoked implements RevocationStore.
func (m *MemoryRevocationStore) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("session ID cannot be empty")
	}

	key := hashSessionID(sessionID)

	m.mu.RLock()
	expiresAt, exists := m.revoked[key]
	m.mu.RUnlock()

	if !exists {
		return false, nil
	}
	return m.clock.Now().Before(expiresAt), nil
}

// CleanupExpired removes expired entries from memory.
func (m *MemoryRevocationStore) CleanupExpired(ctx context.Context) error {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, expiresAt := range m.revoked {
		if !now.Before(expiresAt) {
			delete(m.revoked, key)
		}
	}
	return nil
}

// periodicCleanup runs background cleanup of expired entries
func (m *MemoryRevocationStore) periodicCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	ctx := context.Background()

	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			_ = m.CleanupExpired(ctx)
		}
	}
}

// Close stops the background cleanup goroutine.
// Call this when shutting down the application.
func (m *MemoryRevocationStore) Close() error {
	m.cleanupOnce.Do(func() {
		close(m.stopCleanup)
	})
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryRevocationStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.revoked)
}
