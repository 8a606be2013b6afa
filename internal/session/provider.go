// Package session owns the in-memory view of the authenticated user and
// the operations that change it: login, signup, logout, profile fetch,
// and the validity check driven by route guards.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mprlab/classgate/internal/metrics"
	"github.com/mprlab/classgate/internal/platform"
	"github.com/mprlab/classgate/internal/tokenstore"
	"go.uber.org/zap"
)

const genericNetworkMessage = "Could not reach the server. Please try again."

// State is a point-in-time snapshot of the provider.
type State struct {
	User    *platform.User
	Loading bool
	Err     string
}

// Provider is the sole writer of the session state. Loading is true for
// the duration of any network auth operation and is reset on every exit
// path.
type Provider struct {
	client   *platform.Client
	tokens   tokenstore.Store
	logger   *zap.Logger
	recorder metrics.Recorder

	mutex     sync.Mutex
	user      *platform.User
	loading   bool
	lastError string
}

// NewProvider constructs a Provider. Logger and recorder may be nil.
func NewProvider(client *platform.Client, tokens tokenstore.Store, logger *zap.Logger, recorder metrics.Recorder) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewCounterRecorder()
	}
	return &Provider{
		client:   client,
		tokens:   tokens,
		logger:   logger,
		recorder: recorder,
	}
}

// Snapshot returns the current session state.
func (provider *Provider) Snapshot() State {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return State{
		User:    provider.user,
		Loading: provider.loading,
		Err:     provider.lastError,
	}
}

// Login authenticates and caches the returned profile. On rejection the
// server detail lands in the error state and the user stays nil.
func (provider *Provider) Login(ctx context.Context, username string, password string) (*platform.User, error) {
	provider.begin()
	defer provider.finish()

	user, loginErr := provider.client.Login(ctx, username, password)
	if loginErr != nil {
		provider.recorder.Increment(metrics.EventLoginFailure)
		provider.fail(loginErr)
		return nil, loginErr
	}
	provider.recorder.Increment(metrics.EventLoginSuccess)
	provider.adopt(ctx, user)
	return user, nil
}

// Signup registers a new account and authenticates it immediately, the
// same way Login does.
func (provider *Provider) Signup(ctx context.Context, username string, name string, email string, password string, role platform.Role) (*platform.User, error) {
	provider.begin()
	defer provider.finish()

	user, signupErr := provider.client.Register(ctx, username, name, email, password, role)
	if signupErr != nil {
		provider.recorder.Increment(metrics.EventSignupFailure)
		provider.fail(signupErr)
		return nil, signupErr
	}
	provider.recorder.Increment(metrics.EventSignupSuccess)
	provider.adopt(ctx, user)
	return user, nil
}

// Logout clears the stored tokens and the in-memory user. The server
// notification is best-effort: its failure is logged and local logout
// still completes. Calling Logout twice leaves the same end state.
func (provider *Provider) Logout(ctx context.Context) {
	if notifyErr := provider.client.Logout(ctx); notifyErr != nil {
		provider.logger.Warn("server logout failed, clearing locally", zap.Error(notifyErr))
	}
	if clearErr := provider.tokens.Clear(ctx); clearErr != nil {
		provider.logger.Error("token store clear failed", zap.Error(clearErr))
	}
	provider.recorder.Increment(metrics.EventLogout)
	provider.mutex.Lock()
	provider.user = nil
	provider.lastError = ""
	provider.mutex.Unlock()
}

// FetchCurrentUser loads the authoritative profile. An unauthorized
// result that the client could not resolve by refreshing yields a nil
// user; callers treat that as unauthenticated.
func (provider *Provider) FetchCurrentUser(ctx context.Context) (*platform.User, error) {
	provider.begin()
	defer provider.finish()

	user, fetchErr := provider.client.CurrentUser(ctx)
	if fetchErr != nil {
		return nil, fetchErr
	}
	provider.adopt(ctx, user)
	return user, nil
}

// Rehydrate restores the cached profile from the store, as on app start.
// A missing or undecodable cache leaves the user nil.
func (provider *Provider) Rehydrate(ctx context.Context) *platform.User {
	raw, valueErr := provider.tokens.Value(ctx, tokenstore.KeyUser)
	if valueErr != nil {
		if !errors.Is(valueErr, tokenstore.ErrValueNotFound) {
			provider.logger.Warn("cached user read failed", zap.Error(valueErr))
		}
		return nil
	}
	var user platform.User
	if unmarshalErr := json.Unmarshal([]byte(raw), &user); unmarshalErr != nil {
		provider.logger.Warn("cached user decode failed", zap.Error(unmarshalErr))
		return nil
	}
	provider.mutex.Lock()
	provider.user = &user
	provider.mutex.Unlock()
	return &user
}

func (provider *Provider) begin() {
	provider.mutex.Lock()
	provider.loading = true
	provider.lastError = ""
	provider.mutex.Unlock()
}

func (provider *Provider) finish() {
	provider.mutex.Lock()
	provider.loading = false
	provider.mutex.Unlock()
}

func (provider *Provider) fail(err error) {
	message := platform.Detail(err)
	if errors.Is(err, platform.ErrNetwork) {
		message = genericNetworkMessage
	}
	provider.mutex.Lock()
	provider.lastError = message
	provider.user = nil
	provider.mutex.Unlock()
}

// adopt sets the in-memory user and writes the cached projection.
func (provider *Provider) adopt(ctx context.Context, user *platform.User) {
	provider.mutex.Lock()
	provider.user = user
	provider.lastError = ""
	provider.mutex.Unlock()
	encoded, marshalErr := json.Marshal(user)
	if marshalErr != nil {
		provider.logger.Warn("user cache encode failed", zap.Error(marshalErr))
		return
	}
	if setErr := provider.tokens.SetValue(ctx, tokenstore.KeyUser, string(encoded)); setErr != nil {
		provider.logger.Warn("user cache write failed", zap.Error(setErr))
	}
}

// clearSession drops tokens and the in-memory user after a failed check.
func (provider *Provider) clearSession(ctx context.Context) {
	if clearErr := provider.tokens.Clear(ctx); clearErr != nil {
		provider.logger.Error("token store clear failed", zap.Error(clearErr))
	}
	provider.mutex.Lock()
	provider.user = nil
	provider.mutex.Unlock()
}
