package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials indicates the platform rejected a login or signup.
	ErrInvalidCredentials = errors.New("platform.invalid_credentials")
	// ErrMissingRefreshToken indicates a refresh was attempted with no refresh token stored.
	ErrMissingRefreshToken = errors.New("platform.missing_refresh_token")
	// ErrRefreshFailed indicates the platform rejected the stored refresh token.
	ErrRefreshFailed = errors.New("platform.refresh_failed")
	// ErrNetwork indicates a request could not complete.
	ErrNetwork = errors.New("platform.network")
	// ErrUnauthorized indicates access was denied after the single refresh retry.
	ErrUnauthorized = errors.New("platform.unauthorized")
	// ErrDuplicateFileName indicates the upload was rejected because the file name already exists.
	ErrDuplicateFileName = errors.New("platform.duplicate_file_name")
)

// APIError carries the platform's status code and detail payload alongside
// the sentinel it wraps.
type APIError struct {
	Status   int
	Detail   string
	Sentinel error
}

// Error renders the status and detail message.
func (apiError *APIError) Error() string {
	if apiError.Detail == "" {
		return fmt.Sprintf("platform.api_error.%d", apiError.Status)
	}
	return fmt.Sprintf("platform.api_error.%d: %s", apiError.Status, apiError.Detail)
}

// Unwrap exposes the wrapped sentinel for errors.Is checks.
func (apiError *APIError) Unwrap() error {
	return apiError.Sentinel
}

// Detail extracts a user-facing message from an error: the platform's
// detail payload when present, otherwise the error text itself.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var apiError *APIError
	if errors.As(err, &apiError) && apiError.Detail != "" {
		return apiError.Detail
	}
	return err.Error()
}
