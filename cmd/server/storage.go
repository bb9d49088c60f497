package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/workoutdates/internal/tokenstore"
	"go.uber.org/zap"
)

const (
	configCodeMissingDatabase     = "config.missing_database"
	configCodeMissingAccessToken  = "config.missing_access_token"
	configCodeMissingRefreshToken = "config.missing_refresh_token"
	configCodeInvalidExpiresAt    = "config.invalid_expires_at"
)

var openDatabaseStore = func(ctx context.Context, databaseURL string) (*tokenstore.DatabaseStore, error) {
	return tokenstore.NewDatabaseStore(ctx, databaseURL)
}

func newSeedCommand() *cobra.Command {
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Store an athlete's initial access token, expiry and refresh token",
		Long: "The refresher can only rotate credentials it already has. seed writes the tokens obtained " +
			"from the Strava OAuth consent flow so the first request has something to refresh.",
		Args: cobra.NoArgs,
		RunE: runSeed,
	}
	seedCmd.Flags().String("access_token", "", "Current Strava access token")
	seedCmd.Flags().String("refresh_token", "", "Current Strava refresh token")
	seedCmd.Flags().Int64("expires_at", 0, "Access token expiry in epoch seconds; zero forces a refresh on first use")
	return seedCmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the token tables and exit",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func runSeed(command *cobra.Command, arguments []string) error {
	accessToken, _ := command.Flags().GetString("access_token")
	if strings.TrimSpace(accessToken) == "" {
		return configError(configCodeMissingAccessToken, "access_token must be provided")
	}
	refreshToken, _ := command.Flags().GetString("refresh_token")
	if strings.TrimSpace(refreshToken) == "" {
		return configError(configCodeMissingRefreshToken, "refresh_token must be provided")
	}
	expiresAt, _ := command.Flags().GetInt64("expires_at")
	if expiresAt < 0 {
		return configError(configCodeInvalidExpiresAt, "expires_at must not be negative")
	}
	athleteID, athleteErr := loadAthleteID()
	if athleteErr != nil {
		return athleteErr
	}

	logger, loggerErr := newLogger(viper.GetString("log_level"))
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	store, storeErr := openRequiredDatabaseStore(command.Context())
	if storeErr != nil {
		return storeErr
	}
	defer func() { _ = store.Close() }()

	ctx := commandContextOrBackground(command)
	token := tokenstore.AthleteToken{
		AthleteID:   athleteID,
		AccessToken: accessToken,
		ExpiresAt:   time.Unix(expiresAt, 0).UTC(),
	}
	if err := store.UpsertAthleteToken(ctx, token); err != nil {
		return err
	}
	if err := store.SetRefreshToken(ctx, athleteID, refreshToken); err != nil {
		return err
	}

	logger.Info("seeded athlete tokens",
		zap.Int64("athlete_id", athleteID),
		zap.String("driver", store.Driver()),
		zap.Time("expires_at", token.ExpiresAt))
	fmt.Fprintf(command.OutOrStdout(), "seeded tokens for athlete %d\n", athleteID)
	return nil
}

func runMigrate(command *cobra.Command, arguments []string) error {
	store, storeErr := openRequiredDatabaseStore(command.Context())
	if storeErr != nil {
		return storeErr
	}
	defer func() { _ = store.Close() }()
	fmt.Fprintf(command.OutOrStdout(), "token tables ready (%s)\n", store.Driver())
	return nil
}

func openRequiredDatabaseStore(ctx context.Context) (*tokenstore.DatabaseStore, error) {
	databaseURL := resolveDatabaseURL()
	if databaseURL == "" {
		return nil, configError(configCodeMissingDatabase, "database_url or db_file must be provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return openDatabaseStore(ctx, databaseURL)
}

func commandContextOrBackground(command *cobra.Command) context.Context {
	if ctx := command.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
