package tokenstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

func migrationDialect(driverLabel string) (goose.Dialect, error) {
	switch driverLabel {
	case "sqlite":
		return goose.DialectSQLite3, nil
	case "postgres":
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("token_store.migrate.%s: %w", driverLabel, ErrUnsupportedDialect)
	}
}

// applyMigrations creates the token tables if they do not exist.
func applyMigrations(ctx context.Context, sqlDB *sql.DB, driverLabel string) error {
	dialect, dialectErr := migrationDialect(driverLabel)
	if dialectErr != nil {
		return dialectErr
	}
	migrationFiles, subErr := fs.Sub(embeddedMigrations, "migrations")
	if subErr != nil {
		return fmt.Errorf("token_store.migrate.%s: %w", driverLabel, subErr)
	}
	provider, providerErr := goose.NewProvider(dialect, sqlDB, migrationFiles)
	if providerErr != nil {
		return fmt.Errorf("token_store.migrate.%s: %w", driverLabel, providerErr)
	}
	if _, upErr := provider.Up(ctx); upErr != nil {
		return fmt.Errorf("token_store.migrate.%s: %w", driverLabel, upErr)
	}
	return nil
}
