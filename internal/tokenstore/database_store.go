package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("token_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("token_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("token_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("token_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("token_store.unsupported_no_scheme")
)

// DatabaseStore persists the key-value document using GORM. SQLite serves
// single-host installs; Postgres serves gateways sharing one session.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

type storedValueRecord struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value;not null"`
}

func (storedValueRecord) TableName() string {
	return "session_values"
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

// NewDatabaseStore constructs a GORM-backed store.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("token_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("token_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&storedValueRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("token_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}, nil
}

// Credentials loads both token rows and applies the trust rule.
func (store *DatabaseStore) Credentials(ctx context.Context) (Credentials, error) {
	var records []storedValueRecord
	err := store.db.WithContext(ctx).
		Where("key IN ?", []string{KeyAccessToken, KeyRefreshToken}).
		Find(&records).Error
	if err != nil {
		return Credentials{}, fmt.Errorf("token_store.credentials.%s: %w", store.driverLabel, err)
	}
	var pair Credentials
	for _, record := range records {
		switch record.Key {
		case KeyAccessToken:
			pair.AccessToken = record.Value
		case KeyRefreshToken:
			pair.RefreshToken = record.Value
		}
	}
	return sanitizeCredentials(pair)
}

// SetCredentials upserts both token rows inside one transaction.
func (store *DatabaseStore) SetCredentials(ctx context.Context, pair Credentials) error {
	records := []storedValueRecord{
		{Key: KeyAccessToken, Value: pair.AccessToken},
		{Key: KeyRefreshToken, Value: pair.RefreshToken},
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&records).Error
	if err != nil {
		return fmt.Errorf("token_store.set_credentials.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Value returns a cached projection by key.
func (store *DatabaseStore) Value(ctx context.Context, key string) (string, error) {
	var record storedValueRecord
	err := store.db.WithContext(ctx).Where("key = ?", key).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrValueNotFound
		}
		return "", fmt.Errorf("token_store.value.%s: %w", store.driverLabel, err)
	}
	if record.Value == "" {
		return "", ErrValueNotFound
	}
	return record.Value, nil
}

// SetValue upserts a cached projection by key.
func (store *DatabaseStore) SetValue(ctx context.Context, key string, value string) error {
	record := storedValueRecord{Key: key, Value: value}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("token_store.set_value.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Clear deletes both tokens and the cached user in one statement.
func (store *DatabaseStore) Clear(ctx context.Context) error {
	err := store.db.WithContext(ctx).
		Where("key IN ?", []string{KeyAccessToken, KeyRefreshToken, KeyUser}).
		Delete(&storedValueRecord{}).Error
	if err != nil {
		return fmt.Errorf("token_store.clear.%s: %w", store.driverLabel, err)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("token_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("token_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("token_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("token_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
