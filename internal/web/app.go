package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mprlab/classgate/internal/metrics"
	"github.com/mprlab/classgate/internal/platform"
	"github.com/mprlab/classgate/internal/session"
	"go.uber.org/zap"
)

// AppConfig wires the gateway router.
type AppConfig struct {
	Provider *session.Provider
	Logger   *zap.Logger
	Recorder metrics.Recorder
	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler
}

var errNilProvider = errors.New("web.app.nil_provider")

// NewRouter builds the gateway route surface: public auth views, the
// role-guarded teacher and student areas, and the default redirect. The
// guarded handlers return minimal payloads; view rendering belongs to the
// browser app.
func NewRouter(configuration AppConfig) (*gin.Engine, error) {
	if configuration.Provider == nil {
		return nil, errNilProvider
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	provider := configuration.Provider
	recorder := configuration.Recorder

	router.GET("/", func(contextGin *gin.Context) {
		result := provider.Check(contextGin.Request.Context())
		if result.Status != session.StatusAuthenticated || result.User == nil {
			contextGin.Redirect(http.StatusFound, LoginPath)
			return
		}
		contextGin.Redirect(http.StatusFound, result.User.Role.DefaultPath())
	})

	router.GET("/login", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"view": "login"})
	})
	router.POST("/login", handleLogin(provider))

	router.GET("/signup", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, gin.H{"view": "signup"})
	})
	router.POST("/signup", handleSignup(provider))

	router.POST("/logout", func(contextGin *gin.Context) {
		provider.Logout(contextGin.Request.Context())
		contextGin.Status(http.StatusNoContent)
	})

	teacher := router.Group("/teacher")
	teacher.Use(Guard(provider, platform.RoleTeacher, recorder))
	teacher.GET("", viewHandler("teacher_dashboard"))
	teacher.GET("/mark", viewHandler("teacher_mark"))
	teacher.GET("/upload", viewHandler("teacher_upload"))

	student := router.Group("/student")
	student.Use(Guard(provider, platform.RoleStudent, recorder))
	student.GET("", viewHandler("student_chat"))

	if configuration.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(configuration.MetricsHandler))
	}

	return router, nil
}

func handleLogin(provider *session.Provider) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		var inbound struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "invalid_json"})
			return
		}
		user, loginErr := provider.Login(contextGin.Request.Context(), inbound.Username, inbound.Password)
		if loginErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": provider.Snapshot().Err})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"user": user})
	}
}

func handleSignup(provider *session.Provider) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
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
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "unknown role"})
			return
		}
		user, signupErr := provider.Signup(contextGin.Request.Context(), inbound.Username, inbound.Name, inbound.Email, inbound.Password, role)
		if signupErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": provider.Snapshot().Err})
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

func viewHandler(view string) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		user, _ := SessionUser(contextGin)
		contextGin.JSON(http.StatusOK, gin.H{"view": view, "user": user})
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
