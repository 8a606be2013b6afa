package tokenstore

import (
	"context"
	"errors"
)

// Storage keys. These are stable across restarts so a store opened on the
// same backing location rehydrates the previous session.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
	KeyStudentName  = "student_name"
)

var (
	// ErrNoCredentials indicates no trustworthy credential pair is stored.
	ErrNoCredentials = errors.New("token_store.no_credentials")
	// ErrValueNotFound indicates the requested cached value is absent.
	ErrValueNotFound = errors.New("token_store.value_not_found")
)

// Credentials is the bearer token pair issued by the platform.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Store persists the credential pair and cached profile projections.
// Clear removes the tokens and the cached user in one step; the student
// display name survives logout, matching the platform client behavior.
type Store interface {
	Credentials(ctx context.Context) (Credentials, error)
	SetCredentials(ctx context.Context, pair Credentials) error
	Value(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key string, value string) error
	Clear(ctx context.Context) error
}

// sanitizeCredentials enforces the trust rule: an access token without a
// refresh token cannot be renewed and is reported as no credentials at all.
func sanitizeCredentials(pair Credentials) (Credentials, error) {
	if pair.RefreshToken == "" {
		return Credentials{}, ErrNoCredentials
	}
	return pair, nil
}
