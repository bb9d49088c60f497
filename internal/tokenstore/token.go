package tokenstore

import (
	"context"
	"time"
)

// AthleteToken is the cached access token for one athlete.
type AthleteToken struct {
	AthleteID   int64
	AccessToken string
	ExpiresAt   time.Time
}

// Store persists one access token and one refresh token per athlete.
type Store interface {
	GetAthleteToken(ctx context.Context, athleteID int64) (AthleteToken, error)
	UpsertAthleteToken(ctx context.Context, token AthleteToken) error
	GetRefreshToken(ctx context.Context, athleteID int64) (string, error)
	SetRefreshToken(ctx context.Context, athleteID int64, refreshToken string) error
}
