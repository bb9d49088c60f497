package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	postgresMaxOpenConns    = 8
	postgresMaxIdleConns    = 1
	postgresConnMaxLifetime = 30 * time.Minute
)

var (
	errEmptyDatabaseURL = errors.New("token_store.database_url.empty")
	errMissingScheme    = errors.New("token_store.database_url.missing_scheme")
	errEmptySQLitePath  = errors.New("token_store.database_url.empty_sqlite_path")
)

// DatabaseStore persists athlete tokens using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	driverLabel string
}

type athleteTokenRecord struct {
	AthleteID   int64  `gorm:"column:athlete_id;primaryKey;autoIncrement:false"`
	AccessToken string `gorm:"column:access_token;not null"`
	ExpiresUnix int64  `gorm:"column:expires_at;not null"`
}

func (athleteTokenRecord) TableName() string {
	return "athlete_tokens"
}

type refreshTokenRecord struct {
	AthleteID    int64  `gorm:"column:athlete_id;primaryKey;autoIncrement:false"`
	RefreshToken string `gorm:"column:refresh_token;not null"`
}

func (refreshTokenRecord) TableName() string {
	return "athlete_refresh_tokens"
}

// NewDatabaseStore opens the database behind databaseURL and applies the schema.
func NewDatabaseStore(ctx context.Context, databaseURL string) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("token_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("token_store.open.%s: %w", driverLabel, openErr)
	}
	sqlDB, sqlErr := gormDB.DB()
	if sqlErr != nil {
		return nil, fmt.Errorf("token_store.open.%s: %w", driverLabel, sqlErr)
	}
	if driverLabel == "postgres" {
		sqlDB.SetMaxOpenConns(postgresMaxOpenConns)
		sqlDB.SetMaxIdleConns(postgresMaxIdleConns)
		sqlDB.SetConnMaxLifetime(postgresConnMaxLifetime)
	}
	if migrateErr := applyMigrations(ctx, sqlDB, driverLabel); migrateErr != nil {
		_ = sqlDB.Close()
		return nil, migrateErr
	}
	return newDatabaseStore(gormDB, driverLabel), nil
}

func newDatabaseStore(gormDB *gorm.DB, driverLabel string) *DatabaseStore {
	return &DatabaseStore{
		db:          gormDB,
		driverLabel: driverLabel,
	}
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

// Close releases the underlying connection pool.
func (store *DatabaseStore) Close() error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return fmt.Errorf("token_store.close.%s: %w", store.driverLabel, err)
	}
	return sqlDB.Close()
}

// GetAthleteToken returns the cached access token for athleteID.
func (store *DatabaseStore) GetAthleteToken(ctx context.Context, athleteID int64) (AthleteToken, error) {
	var record athleteTokenRecord
	err := store.db.WithContext(ctx).Where("athlete_id = ?", athleteID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AthleteToken{}, fmt.Errorf("token_store.get.%s: %w", store.driverLabel, ErrTokenNotFound)
		}
		return AthleteToken{}, fmt.Errorf("token_store.get.%s: %w", store.driverLabel, err)
	}
	return AthleteToken{
		AthleteID:   record.AthleteID,
		AccessToken: record.AccessToken,
		ExpiresAt:   time.Unix(record.ExpiresUnix, 0).UTC(),
	}, nil
}

// UpsertAthleteToken inserts or replaces the access token keyed on athlete id.
func (store *DatabaseStore) UpsertAthleteToken(ctx context.Context, token AthleteToken) error {
	if strings.TrimSpace(token.AccessToken) == "" {
		return fmt.Errorf("token_store.upsert.%s: %w", store.driverLabel, ErrEmptyToken)
	}
	record := athleteTokenRecord{
		AthleteID:   token.AthleteID,
		AccessToken: token.AccessToken,
		ExpiresUnix: token.ExpiresAt.UTC().Unix(),
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "athlete_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "expires_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("token_store.upsert.%s: %w", store.driverLabel, err)
	}
	return nil
}

// GetRefreshToken returns the latest refresh token for athleteID.
func (store *DatabaseStore) GetRefreshToken(ctx context.Context, athleteID int64) (string, error) {
	var record refreshTokenRecord
	err := store.db.WithContext(ctx).Where("athlete_id = ?", athleteID).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("token_store.get_refresh.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
		}
		return "", fmt.Errorf("token_store.get_refresh.%s: %w", store.driverLabel, err)
	}
	return record.RefreshToken, nil
}

// SetRefreshToken inserts or replaces the refresh token keyed on athlete id.
func (store *DatabaseStore) SetRefreshToken(ctx context.Context, athleteID int64, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return fmt.Errorf("token_store.set_refresh.%s: %w", store.driverLabel, ErrEmptyToken)
	}
	record := refreshTokenRecord{
		AthleteID:    athleteID,
		RefreshToken: refreshToken,
	}
	err := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "athlete_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"refresh_token"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("token_store.set_refresh.%s: %w", store.driverLabel, err)
	}
	return nil
}

// resolveDialector maps a database URL onto a GORM dialector and the driver label used in error
// prefixes and migrations.
func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("token_store.database_url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "":
		return nil, "", fmt.Errorf("token_store.database_url: %w", errMissingScheme)
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := sqliteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("token_store.database_url.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("token_store.database_url.%s: %w", scheme, ErrUnsupportedDialect)
	}
}

// sqliteDSN turns sqlite:tokens.db, sqlite:///abs/tokens.db and sqlite:file:name?mode=memory into
// the file name the driver expects, keeping any query parameters.
func sqliteDSN(parsed *url.URL) (string, error) {
	location := parsed.Opaque
	if location == "" {
		location = parsed.Host + parsed.Path
	}
	if location == "" {
		return "", errEmptySQLitePath
	}
	if parsed.RawQuery != "" {
		location += "?" + parsed.RawQuery
	}
	return location, nil
}

// SQLiteURL converts a plain database file path into a sqlite:// database URL.
func SQLiteURL(databaseFile string) string {
	trimmed := strings.TrimSpace(databaseFile)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "/") {
		return "sqlite://" + trimmed
	}
	return "sqlite:" + trimmed
}
