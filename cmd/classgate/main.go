package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mprlab/classgate/internal/backend"
	"github.com/mprlab/classgate/internal/metrics"
	"github.com/mprlab/classgate/internal/platform"
	"github.com/mprlab/classgate/internal/session"
	"github.com/mprlab/classgate/internal/tokenstore"
	"github.com/mprlab/classgate/internal/web"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

const (
	configCodeMissingAPIBaseURL       = "config.missing_api_base_url"
	configCodeMissingAccessKey        = "config.missing_access_signing_key"
	configCodeMissingRefreshKey       = "config.missing_refresh_signing_key"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeUninitializedGatewayCnf = "config.uninitialized_gateway_config"
	configCodeUninitializedBackendCnf = "config.uninitialized_backend_config"
)

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

type contextKey string

const (
	gatewayConfigContextKey contextKey = "gatewayConfig"
	backendConfigContextKey contextKey = "backendConfig"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "classgate",
		Short:   "Session gateway for the grading platform: token store, auto-refreshing API client, and role-guarded routes",
		PreRunE: prepareGatewayConfig,
		RunE:    runGateway,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("api_base_url", "", "Base URL of the platform API the gateway fronts")
	rootCmd.Flags().String("token_store_url", "", "Token store URL (file://, sqlite://, postgres://, redis://; empty for in-memory)")
	rootCmd.Flags().Bool("enable_metrics", false, "Expose Prometheus metrics at /metrics")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("api_base_url", rootCmd.Flags().Lookup("api_base_url"))
	_ = viper.BindPFlag("token_store_url", rootCmd.Flags().Lookup("token_store_url"))
	_ = viper.BindPFlag("enable_metrics", rootCmd.Flags().Lookup("enable_metrics"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newBackendCommand())

	return rootCmd
}

// GatewayConfig is the validated configuration of the gateway command.
type GatewayConfig struct {
	ListenAddr    string
	APIBaseURL    string
	TokenStoreURL string
	EnableMetrics bool
}

func prepareGatewayConfig(command *cobra.Command, arguments []string) error {
	gatewayConfig, loadErr := LoadGatewayConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, gatewayConfigContextKey, gatewayConfig))
	return nil
}

// LoadGatewayConfig reads and validates the gateway settings from viper.
func LoadGatewayConfig() (GatewayConfig, error) {
	apiBaseURL := strings.TrimSpace(viper.GetString("api_base_url"))
	if apiBaseURL == "" {
		return GatewayConfig{}, configError(configCodeMissingAPIBaseURL, "api_base_url must be provided")
	}
	return GatewayConfig{
		ListenAddr:    viper.GetString("listen_addr"),
		APIBaseURL:    apiBaseURL,
		TokenStoreURL: viper.GetString("token_store_url"),
		EnableMetrics: viper.GetBool("enable_metrics"),
	}, nil
}

func runGateway(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(gatewayConfigContextKey)
	}
	gatewayConfig, ok := contextValue.(GatewayConfig)
	if !ok {
		return configError(configCodeUninitializedGatewayCnf, "gateway configuration not prepared; PreRunE must execute before RunE")
	}

	tokens, storeErr := tokenstore.Open(commandContext, gatewayConfig.TokenStoreURL)
	if storeErr != nil {
		return storeErr
	}
	if gatewayConfig.TokenStoreURL == "" {
		logger.Info("using in-memory token store")
	} else {
		logger.Info("using persistent token store", zap.String("store_url", gatewayConfig.TokenStoreURL))
	}

	client, clientErr := platform.NewClient(platform.ClientConfig{
		BaseURL: gatewayConfig.APIBaseURL,
		Tokens:  tokens,
		Logger:  logger,
	})
	if clientErr != nil {
		return clientErr
	}

	var recorder metrics.Recorder
	var metricsHandler http.Handler
	if gatewayConfig.EnableMetrics {
		prometheusRecorder := metrics.NewPrometheusRecorder()
		recorder = prometheusRecorder
		metricsHandler = prometheusRecorder.Handler()
	} else {
		recorder = metrics.NewCounterRecorder()
	}

	provider := session.NewProvider(client, tokens, logger, recorder)
	provider.Rehydrate(commandContext)

	gin.SetMode(gin.ReleaseMode)
	router, routerErr := web.NewRouter(web.AppConfig{
		Provider:       provider,
		Logger:         logger,
		Recorder:       recorder,
		MetricsHandler: metricsHandler,
	})
	if routerErr != nil {
		return routerErr
	}

	return serve(router, gatewayConfig.ListenAddr, logger)
}

func newBackendCommand() *cobra.Command {
	backendCmd := &cobra.Command{
		Use:     "backend",
		Short:   "Run the platform API locally: login, registration, refresh, profile, upload, and chat",
		PreRunE: prepareBackendConfig,
		RunE:    runBackend,
	}

	backendCmd.Flags().String("listen_addr", ":8000", "HTTP listen address")
	backendCmd.Flags().String("access_signing_key", "", "HS256 signing secret for access tokens")
	backendCmd.Flags().String("refresh_signing_key", "", "HS256 signing secret for refresh tokens")
	backendCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	backendCmd.Flags().Duration("refresh_ttl", 7*24*time.Hour, "Refresh token TTL")
	backendCmd.Flags().String("database_url", "", "Database URL for accounts and uploads (postgres:// or sqlite://; leave empty for in-memory stores)")
	backendCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	backendCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")

	_ = viper.BindPFlag("backend_listen_addr", backendCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("access_signing_key", backendCmd.Flags().Lookup("access_signing_key"))
	_ = viper.BindPFlag("refresh_signing_key", backendCmd.Flags().Lookup("refresh_signing_key"))
	_ = viper.BindPFlag("access_ttl", backendCmd.Flags().Lookup("access_ttl"))
	_ = viper.BindPFlag("refresh_ttl", backendCmd.Flags().Lookup("refresh_ttl"))
	_ = viper.BindPFlag("database_url", backendCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("enable_cors", backendCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", backendCmd.Flags().Lookup("cors_allowed_origins"))

	return backendCmd
}

func prepareBackendConfig(command *cobra.Command, arguments []string) error {
	backendConfig, loadErr := LoadBackendConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, backendConfigContextKey, backendConfig))
	return nil
}

// LoadBackendConfig reads and validates the backend settings from viper.
func LoadBackendConfig() (backend.ServerConfig, error) {
	accessSigningKey := viper.GetString("access_signing_key")
	if accessSigningKey == "" {
		return backend.ServerConfig{}, configError(configCodeMissingAccessKey, "access_signing_key must be provided")
	}

	refreshSigningKey := viper.GetString("refresh_signing_key")
	if refreshSigningKey == "" {
		return backend.ServerConfig{}, configError(configCodeMissingRefreshKey, "refresh_signing_key must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return backend.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return backend.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	return backend.ServerConfig{
		AccessSigningKey:  []byte(accessSigningKey),
		RefreshSigningKey: []byte(refreshSigningKey),
		Issuer:            "classgate",
		AccessTTL:         accessTTL,
		RefreshTTL:        refreshTTL,
	}, nil
}

func runBackend(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(backendConfigContextKey)
	}
	serverConfig, ok := contextValue.(backend.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedBackendCnf, "backend configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("backend_listen_addr")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	var users backend.UserStore
	var files backend.FileStore
	var revocations backend.RevocationStore

	if databaseURL != "" {
		database, openErr := backend.OpenDatabase(databaseURL)
		if openErr != nil {
			return openErr
		}
		databaseUsers, usersErr := backend.NewDatabaseUserStore(commandContext, database)
		if usersErr != nil {
			return usersErr
		}
		databaseFiles, filesErr := backend.NewDatabaseFileStore(commandContext, database)
		if filesErr != nil {
			return filesErr
		}
		databaseRevocations, revocationsErr := backend.NewDatabaseRevocationStore(commandContext, database)
		if revocationsErr != nil {
			return revocationsErr
		}
		users = databaseUsers
		files = databaseFiles
		revocations = databaseRevocations
		logger.Info("using persistent backend stores", zap.String("driver", database.Driver()))
	} else {
		users = backend.NewMemoryUserStore()
		files = backend.NewMemoryFileStore()
		revocations = backend.NewMemoryRevocationStore()
		logger.Info("using in-memory backend stores")
	}

	backend.MountRoutes(router, serverConfig, users, files, revocations, metrics.NewCounterRecorder(), logger)

	return serve(router, listenAddr, logger)
}

func serve(handler http.Handler, listenAddr string, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}
