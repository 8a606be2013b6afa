package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory store intended for tests and dev runs.
type MemoryStore struct {
	mutex  sync.Mutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Credentials returns the stored pair, applying the trust rule.
func (store *MemoryStore) Credentials(ctx context.Context) (Credentials, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return sanitizeCredentials(Credentials{
		AccessToken:  store.values[KeyAccessToken],
		RefreshToken: store.values[KeyRefreshToken],
	})
}

// SetCredentials stores both tokens under one lock.
func (store *MemoryStore) SetCredentials(ctx context.Context, pair Credentials) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.values[KeyAccessToken] = pair.AccessToken
	store.values[KeyRefreshToken] = pair.RefreshToken
	return nil
}

// Value returns a cached projection by key.
func (store *MemoryStore) Value(ctx context.Context, key string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	value, ok := store.values[key]
	if !ok || value == "" {
		return "", ErrValueNotFound
	}
	return value, nil
}

// SetValue stores a cached projection by key.
func (store *MemoryStore) SetValue(ctx context.Context, key string, value string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.values[key] = value
	return nil
}

// Clear removes both tokens and the cached user under one lock.
func (store *MemoryStore) Clear(ctx context.Context) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.values, KeyAccessToken)
	delete(store.values, KeyRefreshToken)
	delete(store.values, KeyUser)
	return nil
}
