package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mprlab/classgate/internal/tokenstore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const refreshFlightKey = "refresh"

// Refresher exchanges the stored refresh token for a new access token.
// Concurrent callers are coalesced into one in-flight exchange: however
// many requests fail with 401 at once, the platform sees a single refresh
// call and every waiter resumes with its result.
type Refresher struct {
	baseURL    string
	httpClient *http.Client
	tokens     tokenstore.Store
	logger     *zap.Logger
	group      singleflight.Group
}

func newRefresher(baseURL string, httpClient *http.Client, tokens tokenstore.Store, logger *zap.Logger) *Refresher {
	return &Refresher{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

// Refresh runs the exchange, sharing one in-flight call across callers.
func (refresher *Refresher) Refresh(ctx context.Context) error {
	_, err, shared := refresher.group.Do(refreshFlightKey, func() (interface{}, error) {
		return nil, refresher.refreshOnce(ctx)
	})
	if shared {
		refresher.logger.Debug("refresh result shared with concurrent caller")
	}
	return err
}

func (refresher *Refresher) refreshOnce(ctx context.Context) error {
	pair, credentialsErr := refresher.tokens.Credentials(ctx)
	if credentialsErr != nil || pair.RefreshToken == "" {
		return fmt.Errorf("platform.refresh: %w", ErrMissingRefreshToken)
	}

	httpRequest, buildErr := http.NewRequestWithContext(ctx, http.MethodPost, refresher.baseURL+"/auth/refresh", bytes.NewReader(nil))
	if buildErr != nil {
		return fmt.Errorf("platform.refresh.build: %w", buildErr)
	}
	httpRequest.Header.Set(RefreshTokenHeader, pair.RefreshToken)

	httpResponse, doErr := refresher.httpClient.Do(httpRequest)
	if doErr != nil {
		return fmt.Errorf("platform.refresh: %w (%v)", ErrNetwork, doErr)
	}
	defer func() { _ = httpResponse.Body.Close() }()
	payload, readErr := readBody(httpResponse)
	if readErr != nil {
		return fmt.Errorf("platform.refresh.read: %w (%v)", ErrNetwork, readErr)
	}
	if httpResponse.StatusCode != http.StatusOK {
		refresher.logger.Warn("refresh rejected", zap.Int("status", httpResponse.StatusCode))
		return &APIError{
			Status:   httpResponse.StatusCode,
			Detail:   decodeDetail(payload),
			Sentinel: ErrRefreshFailed,
		}
	}

	var grant struct {
		AccessToken string `json:"access_token"`
	}
	if unmarshalErr := json.Unmarshal(payload, &grant); unmarshalErr != nil || grant.AccessToken == "" {
		return fmt.Errorf("platform.refresh.decode: %w", ErrRefreshFailed)
	}

	// Write-through before returning so every subsequent read, including
	// the retried request's bearer attachment, sees the new token.
	updated := tokenstore.Credentials{
		AccessToken:  grant.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
	if setErr := refresher.tokens.SetCredentials(ctx, updated); setErr != nil {
		return fmt.Errorf("platform.refresh.store: %w", setErr)
	}
	return nil
}
