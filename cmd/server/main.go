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
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/workoutdates/internal/config"
	"github.com/tyemirov/workoutdates/internal/metrics"
	"github.com/tyemirov/workoutdates/internal/refresher"
	"github.com/tyemirov/workoutdates/internal/strava"
	"github.com/tyemirov/workoutdates/internal/tokenstore"
	"github.com/tyemirov/workoutdates/internal/web"
	"github.com/tyemirov/workoutdates/internal/workouts"
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

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "workoutdates",
		Short:        "Serves the calendar dates of an athlete's Strava workouts",
		SilenceUsage: true,
		PreRunE:      prepareServerConfig,
		RunE:         runServer,
	}

	rootCmd.PersistentFlags().String("database_url", "", "Database URL for tokens (postgres:// or sqlite:); overrides db_file")
	rootCmd.PersistentFlags().String("db_file", "tokens.db", "SQLite file for tokens when database_url is empty; empty for in-memory store")
	rootCmd.PersistentFlags().Int64("athlete_id", config.DefaultAthleteID, "Strava athlete id served by /workout-dates")
	rootCmd.PersistentFlags().String("log_level", "info", "Log level (debug, info, warn, error)")

	rootCmd.Flags().String("listen_addr", ":8000", "HTTP listen address")
	rootCmd.Flags().String("strava_client_id", "", "Strava OAuth application client id")
	rootCmd.Flags().String("strava_client_secret", "", "Strava OAuth application client secret")
	rootCmd.Flags().String("strava_api_url", strava.DefaultBaseURL, "Strava API root")
	rootCmd.Flags().Duration("http_timeout", 10*time.Second, "Timeout for outbound Strava requests")
	rootCmd.Flags().Bool("enable_cors", true, "Enable CORS for browser clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{defaultAllowedOrigin}, "Allowed origins when CORS is enabled")

	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database_url"))
	_ = viper.BindPFlag("db_file", rootCmd.PersistentFlags().Lookup("db_file"))
	_ = viper.BindPFlag("athlete_id", rootCmd.PersistentFlags().Lookup("athlete_id"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log_level"))
	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("strava_client_id", rootCmd.Flags().Lookup("strava_client_id"))
	_ = viper.BindPFlag("strava_client_secret", rootCmd.Flags().Lookup("strava_client_secret"))
	_ = viper.BindPFlag("strava_api_url", rootCmd.Flags().Lookup("strava_api_url"))
	_ = viper.BindPFlag("http_timeout", rootCmd.Flags().Lookup("http_timeout"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()
	_ = viper.BindEnv("db_file", "APP_DB_FILE", "DB_FILE")
	_ = viper.BindEnv("strava_client_id", "APP_STRAVA_CLIENT_ID", "STRAVA_CLIENT_ID")
	_ = viper.BindEnv("strava_client_secret", "APP_STRAVA_CLIENT_SECRET", "STRAVA_CLIENT_SECRET")

	rootCmd.AddCommand(newSeedCommand(), newMigrateCommand())

	return rootCmd
}

const (
	defaultAllowedOrigin = "http://localhost:3000"
	shutdownGracePeriod  = 10 * time.Second

	configCodeMissingClientID         = "config.missing_strava_client_id"
	configCodeMissingClientSecret     = "config.missing_strava_client_secret"
	configCodeInvalidAthleteID        = "config.invalid_athlete_id"
	configCodeInvalidHTTPTimeout      = "config.invalid_http_timeout"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeStravaClientInit        = "config.strava_client_init"
	configCodeInvalidCORS             = "config.invalid_cors"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig validates the bound flags and environment into a ServerConfig.
func LoadServerConfig() (config.ServerConfig, error) {
	clientID := strings.TrimSpace(viper.GetString("strava_client_id"))
	if clientID == "" {
		return config.ServerConfig{}, configError(configCodeMissingClientID, "strava_client_id must be provided")
	}

	clientSecret := strings.TrimSpace(viper.GetString("strava_client_secret"))
	if clientSecret == "" {
		return config.ServerConfig{}, configError(configCodeMissingClientSecret, "strava_client_secret must be provided")
	}

	athleteID, athleteErr := loadAthleteID()
	if athleteErr != nil {
		return config.ServerConfig{}, athleteErr
	}

	httpTimeout := viper.GetDuration("http_timeout")
	if httpTimeout <= 0 {
		return config.ServerConfig{}, configError(configCodeInvalidHTTPTimeout, "http_timeout must be greater than zero")
	}

	apiURL := strings.TrimSpace(viper.GetString("strava_api_url"))
	if apiURL == "" {
		apiURL = strava.DefaultBaseURL
	}

	enableCORS := viper.GetBool("enable_cors")
	allowedOrigins := splitOrigins(viper.GetStringSlice("cors_allowed_origins"))
	if enableCORS && len(allowedOrigins) == 0 {
		allowedOrigins = []string{defaultAllowedOrigin}
	}

	return config.ServerConfig{
		ListenAddr:  viper.GetString("listen_addr"),
		DatabaseURL: resolveDatabaseURL(),
		AthleteID:   athleteID,
		Strava: strava.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			BaseURL:      apiURL,
		},
		HTTPTimeout:        httpTimeout,
		EnableCORS:         enableCORS,
		CORSAllowedOrigins: allowedOrigins,
	}, nil
}

func loadAthleteID() (int64, error) {
	athleteID := viper.GetInt64("athlete_id")
	if athleteID <= 0 {
		return 0, configError(configCodeInvalidAthleteID, "athlete_id must be a positive integer")
	}
	return athleteID, nil
}

// resolveDatabaseURL prefers database_url and falls back to a sqlite URL built from db_file.
func resolveDatabaseURL() string {
	if databaseURL := strings.TrimSpace(viper.GetString("database_url")); databaseURL != "" {
		return databaseURL
	}
	return tokenstore.SQLiteURL(viper.GetString("db_file"))
}

// splitOrigins accepts both repeated flags and a comma separated environment value.
func splitOrigins(values []string) []string {
	var origins []string
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := newLogger(viper.GetString("log_level"))
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(config.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	store, closeStore, storeErr := openTokenStore(commandContext, serverConfig.DatabaseURL, logger)
	if storeErr != nil {
		return storeErr
	}
	defer closeStore()

	stravaConfig := serverConfig.Strava
	stravaConfig.HTTPClient = &http.Client{Timeout: serverConfig.HTTPTimeout}
	stravaClient, clientErr := strava.NewClient(stravaConfig)
	if clientErr != nil {
		return fmt.Errorf("%s: %w", configCodeStravaClientInit, clientErr)
	}

	metricsRecorder := metrics.NewCounterMetrics()
	tokenRefresher := refresher.New(store, stravaClient, refresher.NewSystemClock(), logger, metricsRecorder)
	workoutService := workouts.NewService(tokenRefresher, stravaClient, logger, metricsRecorder)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if serverConfig.EnableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, serverConfig.CORSAllowedOrigins)
		if corsErr != nil {
			return fmt.Errorf("%s: %w", configCodeInvalidCORS, corsErr)
		}
		router.Use(corsMiddleware)
	}

	router.GET("/healthz", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})
	router.GET("/debug/metrics", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, metricsRecorder.Snapshot())
	})
	web.MountWorkoutRoutes(router, logger, workoutService, serverConfig.AthleteID)

	server := &http.Server{
		Addr:              serverConfig.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, shutdownGracePeriod)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.String("code", "server.shutdown_failed"), zap.Error(err))
		}
	}()

	logger.Info("listening",
		zap.String("addr", serverConfig.ListenAddr),
		zap.Int64("athlete_id", serverConfig.AthleteID))
	serveErr := serveHTTP(server)
	logger.Info("metrics", zap.Any("counters", metricsRecorder.Snapshot()))
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", serveErr)
	}
	return nil
}

// openTokenStore opens the database store, or an in-memory store when no database is configured.
func openTokenStore(ctx context.Context, databaseURL string, logger *zap.Logger) (tokenstore.Store, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if databaseURL == "" {
		logger.Warn("using in-memory token store; tokens are lost on restart")
		return tokenstore.NewMemoryStore(), func() {}, nil
	}
	databaseStore, storeErr := tokenstore.NewDatabaseStore(ctx, databaseURL)
	if storeErr != nil {
		return nil, nil, storeErr
	}
	logger.Info("using persistent token store", zap.String("driver", databaseStore.Driver()))
	return databaseStore, func() {
		if closeErr := databaseStore.Close(); closeErr != nil {
			logger.Warn("failed to close token store", zap.String("code", "token_store.close_failed"), zap.Error(closeErr))
		}
	}, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
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
