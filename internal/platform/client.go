package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mprlab/classgate/internal/tokenstore"
	"go.uber.org/zap"
)

// AuthorizationHeader carries the bearer access token.
const AuthorizationHeader = "Authorization"

// RefreshTokenHeader carries the refresh token on refresh and logout calls.
const RefreshTokenHeader = "x-refresh-token"

var (
	errEmptyBaseURL = errors.New("platform.client.empty_base_url")
	errNilTokens    = errors.New("platform.client.nil_token_store")
)

// ClientConfig configures the platform API client.
type ClientConfig struct {
	BaseURL    string
	Tokens     tokenstore.Store
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client wraps the platform REST API. It attaches the stored access token
// to every request, and on a 401 runs the coalesced refresh protocol and
// resends the original request exactly once.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     tokenstore.Store
	refresher  *Refresher
	logger     *zap.Logger
}

// NewClient constructs a Client after validating the supplied configuration.
func NewClient(configuration ClientConfig) (*Client, error) {
	if strings.TrimSpace(configuration.BaseURL) == "" {
		return nil, fmt.Errorf("platform.client.new: %w", errEmptyBaseURL)
	}
	if configuration.Tokens == nil {
		return nil, fmt.Errorf("platform.client.new: %w", errNilTokens)
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(configuration.BaseURL, "/")
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     configuration.Tokens,
		refresher:  newRefresher(baseURL, httpClient, configuration.Tokens, logger),
		logger:     logger,
	}, nil
}

// RefreshSession runs the refresh protocol directly; used by session checks
// that hold a refresh token but no access token.
func (client *Client) RefreshSession(ctx context.Context) error {
	return client.refresher.Refresh(ctx)
}

type apiRequest struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	headers     map[string]string
}

type apiResponse struct {
	status int
	body   []byte
}

// do sends the request and applies the retry-once discipline: on a 401 it
// refreshes, reattaches the new access token, and resends a single time.
// A 401 on the resent request surfaces ErrUnauthorized with no further
// refresh attempt.
func (client *Client) do(ctx context.Context, request apiRequest) (apiResponse, error) {
	response, err := client.roundTrip(ctx, request)
	if err != nil {
		return apiResponse{}, err
	}
	if response.status != http.StatusUnauthorized {
		return response, nil
	}
	if refreshErr := client.refresher.Refresh(ctx); refreshErr != nil {
		return apiResponse{}, refreshErr
	}
	client.logger.Debug("resending request after refresh",
		zap.String("method", request.method),
		zap.String("path", request.path))
	response, err = client.roundTrip(ctx, request)
	if err != nil {
		return apiResponse{}, err
	}
	if response.status == http.StatusUnauthorized {
		return apiResponse{}, &APIError{
			Status:   response.status,
			Detail:   decodeDetail(response.body),
			Sentinel: ErrUnauthorized,
		}
	}
	return response, nil
}

// doNoRefresh sends the request without the 401 interception; login and
// signup map authentication statuses themselves.
func (client *Client) doNoRefresh(ctx context.Context, request apiRequest) (apiResponse, error) {
	return client.roundTrip(ctx, request)
}

func (client *Client) roundTrip(ctx context.Context, request apiRequest) (apiResponse, error) {
	target := client.baseURL + request.path
	if len(request.query) > 0 {
		target += "?" + request.query.Encode()
	}
	httpRequest, buildErr := http.NewRequestWithContext(ctx, request.method, target, bytes.NewReader(request.body))
	if buildErr != nil {
		return apiResponse{}, fmt.Errorf("platform.request.build: %w", buildErr)
	}
	if request.contentType != "" {
		httpRequest.Header.Set("Content-Type", request.contentType)
	}
	for name, value := range request.headers {
		httpRequest.Header.Set(name, value)
	}
	if pair, credentialsErr := client.tokens.Credentials(ctx); credentialsErr == nil && pair.AccessToken != "" {
		httpRequest.Header.Set(AuthorizationHeader, "Bearer "+pair.AccessToken)
	}
	httpResponse, doErr := client.httpClient.Do(httpRequest)
	if doErr != nil {
		return apiResponse{}, fmt.Errorf("platform.request.%s_%s: %w (%v)", request.method, request.path, ErrNetwork, doErr)
	}
	defer func() { _ = httpResponse.Body.Close() }()
	payload, readErr := readBody(httpResponse)
	if readErr != nil {
		return apiResponse{}, fmt.Errorf("platform.request.read: %w (%v)", ErrNetwork, readErr)
	}
	return apiResponse{status: httpResponse.StatusCode, body: payload}, nil
}

func decodeDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}

func readBody(httpResponse *http.Response) ([]byte, error) {
	var buffer bytes.Buffer
	if _, err := buffer.ReadFrom(httpResponse.Body); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
