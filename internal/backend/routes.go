package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mprlab/classgate/internal/metrics"
	"github.com/mprlab/classgate/internal/platform"
	"go.uber.org/zap"
)

// Detail messages reproduced from the platform API.
const (
	detailUserNotFound     = "User not found"
	detailInvalidPassword  = "Invalid password"
	detailSessionExpired   = "Login session has expired. Please log in again."
	detailInvalidCreds     = "Invalid credentials"
	detailEmailTaken       = "Email already registered"
	detailUsernameTaken    = "Username already taken"
	detailDuplicateFile    = "File name already exists. Please rename your file and try again."
	detailNotAuthenticated = "Not authenticated"
)

// AuthClaimsContextKey is where RequireAccessToken stores verified claims.
const AuthClaimsContextKey = "auth_claims"

// RequireAccessToken validates the bearer access token and injects claims.
func RequireAccessToken(configuration ServerConfig) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		header := contextGin.GetHeader(platform.AuthorizationHeader)
		var token string
		if header != "" && strings.Contains(header, " ") {
			token = strings.SplitN(header, " ", 2)[1]
		}
		if token == "" {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detailNotAuthenticated})
			return
		}
		claims, verifyErr := VerifyAccessToken(token, configuration)
		if verifyErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detailSessionExpired})
			return
		}
		contextGin.Set(AuthClaimsContextKey, claims)
		contextGin.Next()
	}
}

// MountRoutes registers the platform API surface.
func MountRoutes(router gin.IRouter, configuration ServerConfig, users UserStore, files FileStore, revocations RevocationStore, recorder metrics.Recorder, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.NewCounterRecorder()
	}

	router.GET("/health", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/users/login", func(contextGin *gin.Context) {
		var inbound struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid_json"})
			return
		}
		user, authErr := users.Authenticate(contextGin, inbound.Username, inbound.Password)
		if authErr != nil {
			recorder.Increment(metrics.EventLoginFailure)
			switch {
			case errors.Is(authErr, ErrUserNotFound):
				contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": detailUserNotFound})
			case errors.Is(authErr, ErrInvalidPassword):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detailInvalidPassword})
			default:
				logger.Error("login lookup failed", zap.Error(authErr))
				contextGin.AbortWithStatus(http.StatusInternalServerError)
			}
			return
		}
		grant, grantErr := issueGrant(user, configuration)
		if grantErr != nil {
			logger.Error("token mint failed", zap.Error(grantErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		recorder.Increment(metrics.EventLoginSuccess)
		contextGin.JSON(http.StatusOK, grant)
	})

	router.POST("/users/register", func(contextGin *gin.Context) {
		var inbound struct {
			Username string `json:"username"`
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
			Role     string `json:"role"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid_json"})
			return
		}
		role, roleErr := platform.ParseRole(inbound.Role)
		if roleErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Invalid role"})
			return
		}
		user, createErr := users.Create(contextGin, NewAccount{
			Username: inbound.Username,
			Name:     inbound.Name,
			Email:    inbound.Email,
			Password: inbound.Password,
			Role:     role,
		})
		if createErr != nil {
			recorder.Increment(metrics.EventSignupFailure)
			switch {
			case errors.Is(createErr, ErrEmailTaken):
				contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": detailEmailTaken})
			case errors.Is(createErr, ErrUsernameTaken):
				contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": detailUsernameTaken})
			default:
				logger.Error("register failed", zap.Error(createErr))
				contextGin.AbortWithStatus(http.StatusInternalServerError)
			}
			return
		}
		grant, grantErr := issueGrant(user, configuration)
		if grantErr != nil {
			logger.Error("token mint failed", zap.Error(grantErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		recorder.Increment(metrics.EventSignupSuccess)
		contextGin.JSON(http.StatusCreated, grant)
	})

	router.POST("/auth/refresh", func(contextGin *gin.Context) {
		refreshToken := strings.TrimSpace(contextGin.GetHeader(platform.RefreshTokenHeader))
		if refreshToken == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": detailSessionExpired})
			return
		}
		revoked, revokedErr := revocations.IsRevoked(contextGin, HashRefreshToken(refreshToken))
		if revokedErr != nil {
			logger.Error("revocation check failed", zap.Error(revokedErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if revoked {
			recorder.Increment(metrics.EventRefreshFailure)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detailInvalidCreds})
			return
		}
		claims, verifyErr := VerifyRefreshToken(refreshToken, configuration)
		if verifyErr != nil {
			recorder.Increment(metrics.EventRefreshFailure)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detailInvalidCreds})
			return
		}
		user := platform.User{
			Username: claims.Username,
			Email:    claims.Email,
			Role:     platform.Role(claims.Role),
		}
		accessToken, _, mintErr := MintAccessToken(user, configuration)
		if mintErr != nil {
			logger.Error("token mint failed", zap.Error(mintErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		recorder.Increment(metrics.EventRefreshSuccess)
		contextGin.JSON(http.StatusOK, gin.H{"access_token": accessToken})
	})

	protected := router.Group("")
	protected.Use(RequireAccessToken(configuration))

	protected.GET("/auth/me", func(contextGin *gin.Context) {
		claims := claimsFromContext(contextGin)
		if claims == nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detailNotAuthenticated})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"username": claims.Username,
			"email":    claims.Email,
			"role":     claims.Role,
		})
	})

	protected.POST("/users/logout", func(contextGin *gin.Context) {
		refreshToken := strings.TrimSpace(contextGin.GetHeader(platform.RefreshTokenHeader))
		if refreshToken != "" {
			if revokeErr := revocations.Revoke(contextGin, HashRefreshToken(refreshToken)); revokeErr != nil {
				logger.Warn("refresh revocation failed", zap.Error(revokeErr))
			}
		}
		recorder.Increment(metrics.EventLogout)
		contextGin.Status(http.StatusNoContent)
	})

	protected.POST("/files/upload", func(contextGin *gin.Context) {
		username := strings.TrimSpace(contextGin.Query("username"))
		if username == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "username is required"})
			return
		}
		fileHeader, formErr := contextGin.FormFile(platform.UploadFieldName)
		if formErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "file_uploaded_in is required"})
			return
		}
		record, createErr := files.Create(contextGin, UploadedFile{
			FileName: fileHeader.Filename,
			Username: username,
			Size:     fileHeader.Size,
		})
		if createErr != nil {
			if errors.Is(createErr, ErrDuplicateFileName) {
				contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": detailDuplicateFile})
				return
			}
			logger.Error("upload record failed", zap.Error(createErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{
			"message": "File uploaded successfully",
			"id":      record.ID,
		})
	})

	protected.POST("/chat/ask", func(contextGin *gin.Context) {
		var inbound struct {
			Message  string `json:"message"`
			UnitName string `json:"unit_name"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid_json"})
			return
		}
		reply := fmt.Sprintf("Here is a hint for %s: revisit the rubric criteria before answering %q.", inbound.UnitName, inbound.Message)
		contextGin.JSON(http.StatusOK, gin.H{"text": reply})
	})
}

func issueGrant(user platform.User, configuration ServerConfig) (gin.H, error) {
	accessToken, _, accessErr := MintAccessToken(user, configuration)
	if accessErr != nil {
		return nil, accessErr
	}
	refreshToken, _, refreshErr := MintRefreshToken(user, configuration)
	if refreshErr != nil {
		return nil, refreshErr
	}
	return gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          user,
	}, nil
}

func claimsFromContext(contextGin *gin.Context) *SessionClaims {
	value, found := contextGin.Get(AuthClaimsContextKey)
	if !found {
		return nil
	}
	claims, ok := value.(*SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
