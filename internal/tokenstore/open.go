package tokenstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Open selects a backend from the store URL scheme. An empty URL yields the
// in-memory store, file:// the JSON file store, sqlite:// or postgres:// the
// database store, and redis:// the Redis store.
func Open(ctx context.Context, storeURL string) (Store, error) {
	trimmed := strings.TrimSpace(storeURL)
	if trimmed == "" {
		return NewMemoryStore(), nil
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return nil, fmt.Errorf("token_store.open.parse_url: %w", parseErr)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "file":
		path := parsed.Path
		if parsed.Opaque != "" {
			path = parsed.Opaque
		}
		if parsed.Host != "" {
			path = parsed.Host + parsed.Path
		}
		return NewFileStore(path)
	case "sqlite", "sqlite3", "postgres", "postgresql":
		return NewDatabaseStore(ctx, trimmed)
	case "redis", "rediss":
		return NewRedisStore(trimmed)
	default:
		return nil, fmt.Errorf("token_store.open.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}
