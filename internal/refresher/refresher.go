// Package refresher hands out a currently valid Strava access token for an athlete, refreshing
// and persisting credentials through the token store when the cached token has expired.
package refresher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tyemirov/workoutdates/internal/metrics"
	"github.com/tyemirov/workoutdates/internal/strava"
	"github.com/tyemirov/workoutdates/internal/tokenstore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	MetricCacheHit       = "token.cache.hit"
	MetricRefreshSuccess = "token.refresh.success"
	MetricRefreshFailure = "token.refresh.failure"
	MetricPersistFailure = "token.persist.failure"
)

// refreshFlightTimeout bounds a detached refresh: the grant plus both writes.
const refreshFlightTimeout = 30 * time.Second

var (
	// ErrNoCachedToken indicates there is no access token to start from.
	ErrNoCachedToken = errors.New("token_refresher.no_cached_token")
	// ErrNoRefreshToken indicates the cached token expired and no refresh token is stored.
	ErrNoRefreshToken = errors.New("token_refresher.no_refresh_token")
	// ErrRefreshFailed indicates the provider refused or could not complete the refresh grant.
	ErrRefreshFailed = errors.New("token_refresher.refresh_failed")
)

// TokenGranter exchanges a refresh token for a new grant.
type TokenGranter interface {
	RefreshToken(ctx context.Context, refreshToken string) (strava.TokenGrant, error)
}

// Refresher returns valid access tokens, refreshing them on demand.
type Refresher struct {
	store    tokenstore.Store
	granter  TokenGranter
	clock    Clock
	logger   *zap.Logger
	recorder metrics.Recorder
	inFlight singleflight.Group
}

// New wires a Refresher. Nil clock, logger and recorder fall back to the system clock, a no-op
// logger and a no-op recorder.
func New(store tokenstore.Store, granter TokenGranter, clock Clock, logger *zap.Logger, recorder metrics.Recorder) *Refresher {
	if store == nil {
		panic("token store is required")
	}
	if granter == nil {
		panic("token granter is required")
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.Noop()
	}
	return &Refresher{
		store:    store,
		granter:  granter,
		clock:    clock,
		logger:   logger,
		recorder: recorder,
	}
}

// AccessToken returns a token whose expiry is strictly after now. A token expiring at exactly the
// current second counts as expired.
func (refresher *Refresher) AccessToken(ctx context.Context, athleteID int64) (string, error) {
	cached, cachedErr := refresher.loadCached(ctx, athleteID)
	if cachedErr != nil {
		return "", cachedErr
	}
	if cached.ExpiresAt.After(refresher.clock.Now()) {
		refresher.recorder.Increment(MetricCacheHit)
		return cached.AccessToken, nil
	}

	value, err, _ := refresher.inFlight.Do(strconv.FormatInt(athleteID, 10), func() (any, error) {
		// Strava invalidates the old refresh token once the grant succeeds, so the flight must be
		// able to persist the rotated pair after the caller that started it has gone away.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshFlightTimeout)
		defer cancel()
		return refresher.refresh(flightCtx, athleteID)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (refresher *Refresher) loadCached(ctx context.Context, athleteID int64) (tokenstore.AthleteToken, error) {
	cached, err := refresher.store.GetAthleteToken(ctx, athleteID)
	if err == nil {
		return cached, nil
	}
	if errors.Is(err, tokenstore.ErrTokenNotFound) {
		refresher.logger.Warn("no cached access token",
			zap.String("code", "token_refresher.no_cached_token"),
			zap.Int64("athlete_id", athleteID))
		return tokenstore.AthleteToken{}, ErrNoCachedToken
	}
	refresher.logger.Error("access token lookup failed",
		zap.String("code", "token_refresher.store_read_failed"),
		zap.Int64("athlete_id", athleteID),
		zap.Error(err))
	return tokenstore.AthleteToken{}, fmt.Errorf("%w: %v", ErrNoCachedToken, err)
}

func (refresher *Refresher) refresh(ctx context.Context, athleteID int64) (string, error) {
	// A concurrent flight may have finished between the caller's expiry check and this one.
	if cached, err := refresher.store.GetAthleteToken(ctx, athleteID); err == nil && cached.ExpiresAt.After(refresher.clock.Now()) {
		refresher.recorder.Increment(MetricCacheHit)
		return cached.AccessToken, nil
	}

	refreshToken, lookupErr := refresher.store.GetRefreshToken(ctx, athleteID)
	if lookupErr != nil {
		refresher.logger.Warn("refresh token unavailable",
			zap.String("code", "token_refresher.no_refresh_token"),
			zap.Int64("athlete_id", athleteID),
			zap.Error(lookupErr))
		return "", ErrNoRefreshToken
	}

	grant, grantErr := refresher.granter.RefreshToken(ctx, refreshToken)
	if grantErr != nil {
		refresher.recorder.Increment(MetricRefreshFailure)
		refresher.logger.Error("token refresh failed",
			zap.String("code", "token_refresher.refresh_failed"),
			zap.Int64("athlete_id", athleteID),
			zap.Error(grantErr))
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, grantErr)
	}

	upsertErr := refresher.store.UpsertAthleteToken(ctx, tokenstore.AthleteToken{
		AthleteID:   athleteID,
		AccessToken: grant.AccessToken,
		ExpiresAt:   grant.ExpiresAt.UTC(),
	})
	if upsertErr != nil {
		refresher.recorder.Increment(MetricPersistFailure)
		refresher.logger.Error("failed to upsert token",
			zap.String("code", "token_refresher.persist_access_failed"),
			zap.Int64("athlete_id", athleteID),
			zap.Error(upsertErr))
	}
	if setErr := refresher.store.SetRefreshToken(ctx, athleteID, grant.RefreshToken); setErr != nil {
		refresher.recorder.Increment(MetricPersistFailure)
		refresher.logger.Error("failed to update refresh token",
			zap.String("code", "token_refresher.persist_refresh_failed"),
			zap.Int64("athlete_id", athleteID),
			zap.Error(setErr))
	}

	refresher.recorder.Increment(MetricRefreshSuccess)
	refresher.logger.Info("refreshed token",
		zap.Int64("athlete_id", athleteID),
		zap.Time("expires_at", grant.ExpiresAt.UTC()))
	return grant.AccessToken, nil
}
