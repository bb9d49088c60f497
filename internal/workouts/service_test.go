package workouts

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/tyemirov/workoutdates/internal/metrics"
	"github.com/tyemirov/workoutdates/internal/strava"
	"go.uber.org/zap/zaptest"
)

type stubTokens struct {
	accessToken string
	err         error
	athleteIDs  []int64
}

func (tokens *stubTokens) AccessToken(ctx context.Context, athleteID int64) (string, error) {
	tokens.athleteIDs = append(tokens.athleteIDs, athleteID)
	return tokens.accessToken, tokens.err
}

type stubActivities struct {
	activities   []strava.Activity
	err          error
	accessTokens []string
}

func (lister *stubActivities) ListActivities(ctx context.Context, accessToken string) ([]strava.Activity, error) {
	lister.accessTokens = append(lister.accessTokens, accessToken)
	return lister.activities, lister.err
}

func TestWorkoutDatesMapsActivities(t *testing.T) {
	tokens := &stubTokens{accessToken: "A2"}
	lister := &stubActivities{activities: []strava.Activity{
		{StartDateLocal: "2024-05-01T10:00:00Z"},
		{StartDateLocal: "2024-05-01T18:00:00Z"},
	}}
	recorder := metrics.NewCounterMetrics()

	result := NewService(tokens, lister, zaptest.NewLogger(t), recorder).WorkoutDates(context.Background(), 7)
	if result.Status != StatusOK {
		t.Fatalf("expected ok status, got %s (%s)", result.Status, result.Reason)
	}
	if !reflect.DeepEqual(result.Dates, []string{"2024-05-01", "2024-05-01"}) {
		t.Fatalf("unexpected dates: %v", result.Dates)
	}
	if !reflect.DeepEqual(tokens.athleteIDs, []int64{7}) || !reflect.DeepEqual(lister.accessTokens, []string{"A2"}) {
		t.Fatalf("unexpected collaborator calls: %v %v", tokens.athleteIDs, lister.accessTokens)
	}
	if recorder.Count(MetricDatesServed) != 1 {
		t.Fatalf("expected served metric")
	}
}

func TestWorkoutDatesNoActivitiesIsEmpty(t *testing.T) {
	result := NewService(&stubTokens{accessToken: "A"}, &stubActivities{}, zaptest.NewLogger(t), nil).WorkoutDates(context.Background(), 7)
	if result.Status != StatusEmpty || result.Dates == nil || len(result.Dates) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestWorkoutDatesTokenFailureSkipsActivities(t *testing.T) {
	tokens := &stubTokens{err: errors.New("token_refresher.no_cached_token")}
	lister := &stubActivities{}
	recorder := metrics.NewCounterMetrics()

	result := NewService(tokens, lister, zaptest.NewLogger(t), recorder).WorkoutDates(context.Background(), 7)
	if result.Status != StatusError || result.Reason != "token_refresher.no_cached_token" {
		t.Fatalf("expected token error result, got %+v", result)
	}
	if result.Dates == nil || len(result.Dates) != 0 {
		t.Fatalf("expected empty non-nil dates, got %#v", result.Dates)
	}
	if len(lister.accessTokens) != 0 {
		t.Fatalf("activities must not be fetched without a token")
	}
	if recorder.Count(MetricTokenUnavailable) != 1 {
		t.Fatalf("expected token unavailable metric")
	}
}

func TestWorkoutDatesActivitiesFailureIsEmptyList(t *testing.T) {
	lister := &stubActivities{err: strava.ErrActivitiesFetchFailed}
	recorder := metrics.NewCounterMetrics()

	result := NewService(&stubTokens{accessToken: "A"}, lister, zaptest.NewLogger(t), recorder).WorkoutDates(context.Background(), 7)
	if result.Status != StatusError || len(result.Dates) != 0 || result.Dates == nil {
		t.Fatalf("expected error result with empty dates, got %+v", result)
	}
	if recorder.Count(MetricActivitiesFailed) != 1 {
		t.Fatalf("expected activities failure metric")
	}
}
