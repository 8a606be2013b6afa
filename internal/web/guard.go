package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mprlab/classgate/internal/metrics"
	"github.com/mprlab/classgate/internal/platform"
	"github.com/mprlab/classgate/internal/session"
)

// SessionUserContextKey is where the guard stores the authenticated user.
const SessionUserContextKey = "session_user"

// LoginPath is where unauthenticated requests are redirected.
const LoginPath = "/login"

// Guard gates a protected route on session validity. It runs one session
// check per request: unauthenticated requests are redirected to the login
// view, authenticated users with the wrong role are redirected to their
// own default view, and everyone else passes through with the user
// injected into the gin context. RoleAny admits any authenticated role.
func Guard(provider *session.Provider, requiredRole platform.Role, recorder metrics.Recorder) gin.HandlerFunc {
	if recorder == nil {
		recorder = metrics.NewCounterRecorder()
	}
	return func(contextGin *gin.Context) {
		result := provider.Check(contextGin.Request.Context())
		if result.Status != session.StatusAuthenticated || result.User == nil {
			recorder.Increment(metrics.EventGuardRedirect)
			contextGin.Redirect(http.StatusFound, LoginPath)
			contextGin.Abort()
			return
		}
		if requiredRole != platform.RoleAny && result.User.Role != requiredRole {
			recorder.Increment(metrics.EventGuardRoleBounce)
			contextGin.Redirect(http.StatusFound, result.User.Role.DefaultPath())
			contextGin.Abort()
			return
		}
		contextGin.Set(SessionUserContextKey, result.User)
		contextGin.Next()
	}
}

// SessionUser returns the user a Guard stored on the context.
func SessionUser(contextGin *gin.Context) (*platform.User, bool) {
	value, found := contextGin.Get(SessionUserContextKey)
	if !found {
		return nil, false
	}
	user, ok := value.(*platform.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}
