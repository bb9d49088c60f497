package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/workoutdates/internal/workouts"
	"go.uber.org/zap"
)

// WorkoutDatesStatusHeader reports ok, empty or error alongside the date list.
const WorkoutDatesStatusHeader = "X-Workout-Dates-Status"

// WorkoutDatesResolver resolves workout dates for an athlete.
type WorkoutDatesResolver interface {
	WorkoutDates(ctx context.Context, athleteID int64) workouts.Result
}

// MountWorkoutRoutes registers /workout-dates for the configured athlete and
// /athletes/:athleteID/workout-dates for an explicit one.
func MountWorkoutRoutes(router gin.IRouter, logger *zap.Logger, resolver WorkoutDatesResolver, defaultAthleteID int64) {
	router.GET("/workout-dates", HandleWorkoutDates(logger, resolver, defaultAthleteID))
	router.GET("/athletes/:athleteID/workout-dates", HandleAthleteWorkoutDates(logger, resolver))
}

// HandleWorkoutDates answers with the JSON date list for a fixed athlete. Failures produce an
// empty list with status 200.
func HandleWorkoutDates(logger *zap.Logger, resolver WorkoutDatesResolver, athleteID int64) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		panic("workout dates resolver is required")
	}

	return func(contextGin *gin.Context) {
		writeWorkoutDates(contextGin, logger, resolver.WorkoutDates(contextGin.Request.Context(), athleteID), athleteID)
	}
}

// HandleAthleteWorkoutDates reads the athlete id from the path.
func HandleAthleteWorkoutDates(logger *zap.Logger, resolver WorkoutDatesResolver) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		panic("workout dates resolver is required")
	}

	return func(contextGin *gin.Context) {
		athleteID, parseErr := strconv.ParseInt(contextGin.Param("athleteID"), 10, 64)
		if parseErr != nil || athleteID <= 0 {
			logger.Warn("invalid athlete id",
				zap.String("code", "api.workout_dates.invalid_athlete_id"),
				zap.String("athlete_id", contextGin.Param("athleteID")))
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_athlete_id"})
			return
		}
		writeWorkoutDates(contextGin, logger, resolver.WorkoutDates(contextGin.Request.Context(), athleteID), athleteID)
	}
}

func writeWorkoutDates(contextGin *gin.Context, logger *zap.Logger, result workouts.Result, athleteID int64) {
	dates := result.Dates
	if dates == nil {
		dates = []string{}
	}
	if result.Status == workouts.StatusError {
		logger.Warn("serving empty workout dates",
			zap.String("code", "api.workout_dates.degraded"),
			zap.Int64("athlete_id", athleteID),
			zap.String("reason", result.Reason))
	}
	contextGin.Header(WorkoutDatesStatusHeader, string(result.Status))
	contextGin.JSON(http.StatusOK, dates)
}
