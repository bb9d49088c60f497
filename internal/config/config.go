// Package config holds the explicitly constructed runtime configuration passed into the
// refresher, the Strava client and the HTTP handlers at startup.
package config

import (
	"time"

	"github.com/tyemirov/workoutdates/internal/strava"
)

// DefaultAthleteID is the athlete served by /workout-dates when none is configured.
const DefaultAthleteID int64 = 3721045

// ServerConfig configures storage, the Strava application, and the HTTP surface.
type ServerConfig struct {
	ListenAddr         string
	DatabaseURL        string
	AthleteID          int64
	Strava             strava.Config
	HTTPTimeout        time.Duration
	EnableCORS         bool
	CORSAllowedOrigins []string
}
