package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mprlab/classgate/internal/tokenstore"
	"go.uber.org/zap"
)

const jsonContentType = "application/json"

type credentialGrant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Login exchanges a username and password for a credential pair. On
// success the pair is stored before the user is returned; on rejection
// nothing is written and ErrInvalidCredentials carries the server detail.
func (client *Client) Login(ctx context.Context, username string, password string) (*User, error) {
	payload, marshalErr := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if marshalErr != nil {
		return nil, fmt.Errorf("platform.login.encode: %w", marshalErr)
	}
	response, sendErr := client.doNoRefresh(ctx, apiRequest{
		method:      http.MethodPost,
		path:        "/users/login",
		body:        payload,
		contentType: jsonContentType,
	})
	if sendErr != nil {
		return nil, sendErr
	}
	return client.acceptGrant(ctx, "login", response)
}

// Register creates an account and, on success, authenticates it: the
// issued credential pair is stored exactly as after a login.
func (client *Client) Register(ctx context.Context, username string, name string, email string, password string, role Role) (*User, error) {
	payload, marshalErr := json.Marshal(map[string]string{
		"username": username,
		"name":     name,
		"email":    email,
		"password": password,
		"role":     string(role),
	})
	if marshalErr != nil {
		return nil, fmt.Errorf("platform.register.encode: %w", marshalErr)
	}
	response, sendErr := client.doNoRefresh(ctx, apiRequest{
		method:      http.MethodPost,
		path:        "/users/register",
		body:        payload,
		contentType: jsonContentType,
	})
	if sendErr != nil {
		return nil, sendErr
	}
	return client.acceptGrant(ctx, "register", response)
}

func (client *Client) acceptGrant(ctx context.Context, operation string, response apiResponse) (*User, error) {
	switch response.status {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusNotFound, http.StatusForbidden:
		return nil, &APIError{
			Status:   response.status,
			Detail:   decodeDetail(response.body),
			Sentinel: ErrInvalidCredentials,
		}
	default:
		return nil, &APIError{Status: response.status, Detail: decodeDetail(response.body)}
	}

	var grant credentialGrant
	if unmarshalErr := json.Unmarshal(response.body, &grant); unmarshalErr != nil {
		return nil, fmt.Errorf("platform.%s.decode: %w", operation, unmarshalErr)
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		return nil, fmt.Errorf("platform.%s.decode: %w", operation, ErrInvalidCredentials)
	}
	if _, roleErr := ParseRole(string(grant.User.Role)); roleErr != nil {
		return nil, fmt.Errorf("platform.%s: %w", operation, roleErr)
	}
	pair := tokenstore.Credentials{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
	}
	if setErr := client.tokens.SetCredentials(ctx, pair); setErr != nil {
		return nil, fmt.Errorf("platform.%s.store: %w", operation, setErr)
	}
	user := grant.User
	return &user, nil
}

// CurrentUser fetches the authoritative profile with the stored access
// token, refreshing once through the usual interception on a 401.
func (client *Client) CurrentUser(ctx context.Context) (*User, error) {
	response, sendErr := client.do(ctx, apiRequest{
		method: http.MethodGet,
		path:   "/auth/me",
	})
	if sendErr != nil {
		return nil, sendErr
	}
	if response.status != http.StatusOK {
		return nil, &APIError{Status: response.status, Detail: decodeDetail(response.body)}
	}
	var user User
	if unmarshalErr := json.Unmarshal(response.body, &user); unmarshalErr != nil {
		return nil, fmt.Errorf("platform.current_user.decode: %w", unmarshalErr)
	}
	if _, roleErr := ParseRole(string(user.Role)); roleErr != nil {
		return nil, fmt.Errorf("platform.current_user: %w", roleErr)
	}
	return &user, nil
}

// Logout notifies the platform, handing over the refresh token so it can
// be revoked. Failures are logged and returned, but callers treat the
// notification as best-effort.
func (client *Client) Logout(ctx context.Context) error {
	headers := map[string]string{}
	if pair, credentialsErr := client.tokens.Credentials(ctx); credentialsErr == nil && pair.RefreshToken != "" {
		headers[RefreshTokenHeader] = pair.RefreshToken
	}
	response, sendErr := client.doNoRefresh(ctx, apiRequest{
		method:  http.MethodPost,
		path:    "/users/logout",
		headers: headers,
	})
	if sendErr != nil {
		client.logger.Warn("logout notification failed", zap.Error(sendErr))
		return sendErr
	}
	if response.status >= http.StatusBadRequest {
		client.logger.Warn("logout notification rejected", zap.Int("status", response.status))
		return &APIError{Status: response.status, Detail: decodeDetail(response.body)}
	}
	return nil
}
