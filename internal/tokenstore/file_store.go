package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var errEmptyFilePath = errors.New("token_store.file.empty_path")

// FileStore persists the key-value document as a single JSON file. Writes
// go through a temporary file and rename so readers never observe a
// half-written document.
type FileStore struct {
	mutex sync.Mutex
	path  string
}

// NewFileStore creates a store backed by the given file path. The file is
// created on first write.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("token_store.file.open: %w", errEmptyFilePath)
	}
	return &FileStore{path: path}, nil
}

// Credentials reads the document and returns the stored pair.
func (store *FileStore) Credentials(ctx context.Context) (Credentials, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	document, readErr := store.readLocked()
	if readErr != nil {
		return Credentials{}, readErr
	}
	return sanitizeCredentials(Credentials{
		AccessToken:  document[KeyAccessToken],
		RefreshToken: document[KeyRefreshToken],
	})
}

// SetCredentials rewrites the document with both tokens updated.
func (store *FileStore) SetCredentials(ctx context.Context, pair Credentials) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	document, readErr := store.readLocked()
	if readErr != nil {
		return readErr
	}
	document[KeyAccessToken] = pair.AccessToken
	document[KeyRefreshToken] = pair.RefreshToken
	return store.writeLocked(document)
}

// Value returns a cached projection by key.
func (store *FileStore) Value(ctx context.Context, key string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	document, readErr := store.readLocked()
	if readErr != nil {
		return "", readErr
	}
	value, ok := document[key]
	if !ok || value == "" {
		return "", ErrValueNotFound
	}
	return value, nil
}

// SetValue stores a cached projection by key.
func (store *FileStore) SetValue(ctx context.Context, key string, value string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	document, readErr := store.readLocked()
	if readErr != nil {
		return readErr
	}
	document[key] = value
	return store.writeLocked(document)
}

// Clear removes both tokens and the cached user in one rewrite.
func (store *FileStore) Clear(ctx context.Context) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	document, readErr := store.readLocked()
	if readErr != nil {
		return readErr
	}
	delete(document, KeyAccessToken)
	delete(document, KeyRefreshToken)
	delete(document, KeyUser)
	return store.writeLocked(document)
}

func (store *FileStore) readLocked() (map[string]string, error) {
	data, readErr := os.ReadFile(store.path)
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("token_store.file.read: %w", readErr)
	}
	document := make(map[string]string)
	if len(data) > 0 {
		if unmarshalErr := json.Unmarshal(data, &document); unmarshalErr != nil {
			return nil, fmt.Errorf("token_store.file.decode: %w", unmarshalErr)
		}
	}
	return document, nil
}

func (store *FileStore) writeLocked(document map[string]string) error {
	data, marshalErr := json.Marshal(document)
	if marshalErr != nil {
		return fmt.Errorf("token_store.file.encode: %w", marshalErr)
	}
	directory := filepath.Dir(store.path)
	if mkdirErr := os.MkdirAll(directory, 0o700); mkdirErr != nil {
		return fmt.Errorf("token_store.file.mkdir: %w", mkdirErr)
	}
	temporary, tempErr := os.CreateTemp(directory, ".tokens-*")
	if tempErr != nil {
		return fmt.Errorf("token_store.file.temp: %w", tempErr)
	}
	temporaryPath := temporary.Name()
	if _, writeErr := temporary.Write(data); writeErr != nil {
		_ = temporary.Close()
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("token_store.file.write: %w", writeErr)
	}
	if closeErr := temporary.Close(); closeErr != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("token_store.file.close: %w", closeErr)
	}
	if renameErr := os.Rename(temporaryPath, store.path); renameErr != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("token_store.file.rename: %w", renameErr)
	}
	return nil
}
