package backend

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("backend.db.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("backend.db.empty_database_url")
	errSQLiteEmptyPath     = errors.New("backend.db.sqlite.empty_path")
	errUnsupportedNoScheme = errors.New("backend.db.unsupported_no_scheme")
)

// Database is a shared GORM handle the backend stores migrate onto.
type Database struct {
	handle      *gorm.DB
	driverLabel string
}

// Driver exposes the selected database driver label.
func (database *Database) Driver() string {
	return database.driverLabel
}

// OpenDatabase opens a GORM handle from a sqlite:// or postgres:// URL.
func OpenDatabase(databaseURL string) (*Database, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("backend.db.open: %w", errEmptyDatabaseURL)
	}
	parsed, parseErr := url.Parse(databaseURL)
	if parseErr != nil {
		return nil, fmt.Errorf("backend.db.parse_url: %w", parseErr)
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("backend.db.dialect: %w", errUnsupportedNoScheme)
	}
	var dialector gorm.Dialector
	var driverLabel string
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		dialector = postgres.Open(databaseURL)
		driverLabel = "postgres"
	case "sqlite", "sqlite3":
		dsn := parsed.Opaque
		if dsn == "" {
			dsn = parsed.Host + parsed.Path
		}
		if dsn == "" {
			return nil, fmt.Errorf("backend.db.sqlite: %w", errSQLiteEmptyPath)
		}
		if parsed.RawQuery != "" {
			dsn += "?" + parsed.RawQuery
		}
		dialector = sqliteDialector.Open(dsn)
		driverLabel = "sqlite"
	default:
		return nil, fmt.Errorf("backend.db.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("backend.db.open.%s: %w", driverLabel, openErr)
	}
	return &Database{handle: gormDB, driverLabel: driverLabel}, nil
}
