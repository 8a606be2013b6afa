package backend

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevocationStore remembers refresh tokens surrendered at logout so they
// cannot be replayed. Tokens are stored hashed.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenHash string) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// HashRefreshToken derives the storage key for a refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// MemoryRevocationStore keeps revoked hashes in memory.
type MemoryRevocationStore struct {
	mutex   sync.Mutex
	revoked map[string]struct{}
}

// NewMemoryRevocationStore creates an empty in-memory revocation store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{revoked: make(map[string]struct{})}
}

// Revoke marks the hash as revoked; revoking twice is a no-op.
func (store *MemoryRevocationStore) Revoke(ctx context.Context, tokenHash string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.revoked[tokenHash] = struct{}{}
	return nil
}

// IsRevoked reports whether the hash has been revoked.
func (store *MemoryRevocationStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	_, revoked := store.revoked[tokenHash]
	return revoked, nil
}

// DatabaseRevocationStore persists revoked hashes using GORM.
type DatabaseRevocationStore struct {
	db          *gorm.DB
	driverLabel string
}

type revokedTokenRecord struct {
	TokenHash     string `gorm:"column:token_hash;primaryKey"`
	RevokedAtUnix int64  `gorm:"column:revoked_at_unix;not null"`
}

func (revokedTokenRecord) TableName() string {
	return "revoked_refresh_tokens"
}

// NewDatabaseRevocationStore constructs a GORM-backed revocation store.
func NewDatabaseRevocationStore(ctx context.Context, database *Database) (*DatabaseRevocationStore, error) {
	if migrateErr := database.handle.WithContext(ctx).AutoMigrate(&revokedTokenRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("backend.revocation.migrate.%s: %w", database.driverLabel, migrateErr)
	}
	return &DatabaseRevocationStore{db: database.handle, driverLabel: database.driverLabel}, nil
}

// Revoke marks the hash as revoked; revoking twice is a no-op.
func (store *DatabaseRevocationStore) Revoke(ctx context.Context, tokenHash string) error {
	record := revokedTokenRecord{
		TokenHash:     tokenHash,
		RevokedAtUnix: time.Now().UTC().Unix(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("backend.revocation.revoke.%s: %w", store.driverLabel, err)
	}
	return nil
}

// IsRevoked reports whether the hash has been revoked.
func (store *DatabaseRevocationStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&revokedTokenRecord{}).
		Where("token_hash = ?", tokenHash).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("backend.revocation.check.%s: %w", store.driverLabel, err)
	}
	return count > 0, nil
}
