// Package workouts turns an athlete's Strava activities into the list of dates they trained on.
package workouts

import (
	"context"

	"github.com/tyemirov/workoutdates/internal/metrics"
	"github.com/tyemirov/workoutdates/internal/strava"
	"go.uber.org/zap"
)

const (
	MetricDatesServed      = "workouts.dates.served"
	MetricActivitiesFailed = "workouts.activities.failure"
	MetricTokenUnavailable = "workouts.token.unavailable"
)

// Status classifies a Result.
type Status string

const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Result carries the dates and why they may be empty. Dates is never nil.
type Result struct {
	Dates  []string
	Status Status
	Reason string
}

// AccessTokenProvider yields a currently valid access token for an athlete.
type AccessTokenProvider interface {
	AccessToken(ctx context.Context, athleteID int64) (string, error)
}

// ActivityLister reads the activities feed with an access token.
type ActivityLister interface {
	ListActivities(ctx context.Context, accessToken string) ([]strava.Activity, error)
}

// Service resolves workout dates for an athlete.
type Service struct {
	tokens     AccessTokenProvider
	activities ActivityLister
	logger     *zap.Logger
	recorder   metrics.Recorder
}

// NewService wires the token provider and activities client.
func NewService(tokens AccessTokenProvider, activities ActivityLister, logger *zap.Logger, recorder metrics.Recorder) *Service {
	if tokens == nil {
		panic("access token provider is required")
	}
	if activities == nil {
		panic("activity lister is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.Noop()
	}
	return &Service{
		tokens:     tokens,
		activities: activities,
		logger:     logger,
		recorder:   recorder,
	}
}

// WorkoutDates never fails outright: every error is logged and reported through Result.Status.
func (service *Service) WorkoutDates(ctx context.Context, athleteID int64) Result {
	accessToken, tokenErr := service.tokens.AccessToken(ctx, athleteID)
	if tokenErr != nil {
		service.recorder.Increment(MetricTokenUnavailable)
		service.logger.Warn("no usable access token",
			zap.String("code", "workouts.token_unavailable"),
			zap.Int64("athlete_id", athleteID),
			zap.Error(tokenErr))
		return Result{Dates: []string{}, Status: StatusError, Reason: tokenErr.Error()}
	}

	activities, listErr := service.activities.ListActivities(ctx, accessToken)
	if listErr != nil {
		service.recorder.Increment(MetricActivitiesFailed)
		service.logger.Error("error fetching activities",
			zap.String("code", "workouts.activities_failed"),
			zap.Int64("athlete_id", athleteID),
			zap.Error(listErr))
		return Result{Dates: []string{}, Status: StatusError, Reason: listErr.Error()}
	}

	dates := ExtractDates(service.logger, activities)
	service.recorder.Increment(MetricDatesServed)
	if len(dates) == 0 {
		return Result{Dates: dates, Status: StatusEmpty}
	}
	return Result{Dates: dates, Status: StatusOK}
}
