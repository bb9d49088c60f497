package workouts

import (
	"time"

	"github.com/tyemirov/workoutdates/internal/strava"
	"go.uber.org/zap"
)

const (
	// startDateLocalLayout is Strava's local start time. The trailing Z is literal; the value is
	// wall-clock time in the activity's own time zone.
	startDateLocalLayout = "2006-01-02T15:04:05Z"
	calendarDateLayout   = "2006-01-02"
)

// ExtractDates projects every activity onto its local calendar date, keeping provider order and
// duplicates. Activities with an unparseable start date are skipped.
func ExtractDates(logger *zap.Logger, activities []strava.Activity) []string {
	if logger == nil {
		logger = zap.NewNop()
	}
	dates := make([]string, 0, len(activities))
	for _, activity := range activities {
		startedAt, parseErr := time.Parse(startDateLocalLayout, activity.StartDateLocal)
		if parseErr != nil {
			logger.Warn("skipping activity with malformed start date",
				zap.String("code", "workouts.malformed_start_date"),
				zap.Int64("activity_id", activity.ID),
				zap.String("start_date_local", activity.StartDateLocal))
			continue
		}
		dates = append(dates, startedAt.Format(calendarDateLayout))
	}
	return dates
}
