// File: gourdiansession.repository.gorm.imp.go

package gourdiansession

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevokedSession represents a denylisted session in the database.
type RevokedSession struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	SessionHash string    `gorm:"uniqueIndex:idx_revoked_session_hash;type:varchar(64);not null"`
	ExpiresAt   time.Time `gorm:"index:idx_revoked_session_expires_at;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName specifies the table name for RevokedSession
func (RevokedSession) TableName() string {
	return "revoked_sessions"
}

// GormRevocationStore keeps the denylist in a SQL database through GORM.
type GormRevocationStore struct {
	db    *gorm.DB
	clock Clock
}

// NewGormRevocationStore creates a new GORM-based revocation store, checks the connection
// and migrates the revoked_sessions table. A nil clock uses the wall clock.
func NewGormRevocationStore(ctx context.Context, db *gorm.DB, clock Clock) (*GormRevocationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if clock == nil {
		clock = SystemClock{}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&RevokedSession{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return &GormRevocationStore{db: db, clock: clock}, nil
}

// RevokeSession implements RevocationStore. Revoking twice keeps the later expiry.
//
// The insert and the expiry merge run as one upsert, so concurrent revokes of the same
// session neither fail on the unique index nor lose the longer expiry. The merge
// expression uses PostgreSQL's GREATEST and excluded row.
func (r *GormRevocationStore) RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	now := r.clock.Now()
	model := RevokedSession{
		SessionHash: hashSessionID(sessionID),
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_hash"}},
			DoUpdates: clause.Set{{
				Column: clause.Column{Name: "expires_at"},
				Value:  gorm.Expr("GREATEST(revoked_sessions.expires_at, excluded.expires_at)"),
			}},
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsSessionRevoked implements RevocationStore.
func (r *GormRevocationStore) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("session ID cannot be empty")
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(&RevokedSession{}).
		Where("session_hash = ? AND expires_at > ?", hashSessionID(sessionID), r.clock.Now()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}

	return count > 0, nil
}

// CleanupExpired removes expired entries and returns how many were deleted.
func (r *GormRevocationStore) CleanupExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", r.clock.Now()).
		Delete(&RevokedSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup expired revoked sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Close closes the underlying database connection.
func (r *GormRevocationStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	return sqlDB.Close()
}
