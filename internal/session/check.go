package session

import (
	"context"
	"errors"

	"github.com/mprlab/classgate/internal/metrics"
	"github.com/mprlab/classgate/internal/platform"
	"github.com/mprlab/classgate/internal/tokenstore"
	"go.uber.org/zap"
)

// Status is the terminal outcome of one session check.
type Status int

const (
	// StatusUnauthenticated means no valid session exists; tokens have
	// been cleared.
	StatusUnauthenticated Status = iota
	// StatusAuthenticated means the profile fetch succeeded.
	StatusAuthenticated
)

// CheckResult carries the outcome and, when authenticated, the user.
type CheckResult struct {
	Status Status
	User   *platform.User
}

// Check drives one pass of the session validity machine:
//
//	no tokens                      -> unauthenticated
//	access token present           -> fetch profile (client refreshes once on 401)
//	refresh token only             -> refresh, then fetch profile
//	any refresh or fetch failure   -> clear tokens and user, unauthenticated
//
// Each call is independent; guards re-enter it per navigation.
func (provider *Provider) Check(ctx context.Context) CheckResult {
	pair, credentialsErr := provider.tokens.Credentials(ctx)
	if credentialsErr != nil {
		if !errors.Is(credentialsErr, tokenstore.ErrNoCredentials) {
			provider.logger.Error("credential read failed", zap.Error(credentialsErr))
		}
		provider.clearSession(ctx)
		return CheckResult{Status: StatusUnauthenticated}
	}

	if pair.AccessToken == "" {
		// Refresh token only: renew first so the profile fetch carries a
		// usable bearer token.
		if refreshErr := provider.client.RefreshSession(ctx); refreshErr != nil {
			provider.recorder.Increment(metrics.EventRefreshFailure)
			provider.logger.Info("session refresh failed", zap.Error(refreshErr))
			provider.clearSession(ctx)
			return CheckResult{Status: StatusUnauthenticated}
		}
		provider.recorder.Increment(metrics.EventRefreshSuccess)
	}

	user, fetchErr := provider.FetchCurrentUser(ctx)
	if fetchErr != nil {
		provider.logger.Info("session check fetch failed", zap.Error(fetchErr))
		provider.clearSession(ctx)
		return CheckResult{Status: StatusUnauthenticated}
	}
	return CheckResult{Status: StatusAuthenticated, User: user}
}
