package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/workoutdates/internal/workouts"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type stubResolver struct {
	results    map[int64]workouts.Result
	athleteIDs []int64
}

func (resolver *stubResolver) WorkoutDates(ctx context.Context, athleteID int64) workouts.Result {
	resolver.athleteIDs = append(resolver.athleteIDs, athleteID)
	result, ok := resolver.results[athleteID]
	if !ok {
		return workouts.Result{Dates: []string{}, Status: workouts.StatusError, Reason: "unknown athlete"}
	}
	return result
}

func decodeDates(t *testing.T, recorder *httptest.ResponseRecorder) []string {
	t.Helper()
	var dates []string
	if err := json.Unmarshal(recorder.Body.Bytes(), &dates); err != nil {
		t.Fatalf("failed to decode payload %q: %v", recorder.Body.String(), err)
	}
	return dates
}

func TestHandleWorkoutDates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	resolver := &stubResolver{results: map[int64]workouts.Result{
		3721045: {Dates: []string{"2024-05-01", "2024-05-01"}, Status: workouts.StatusOK},
	}}
	router := gin.New()
	MountWorkoutRoutes(router, zaptest.NewLogger(t), resolver, 3721045)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/workout-dates", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if dates := decodeDates(t, recorder); !reflect.DeepEqual(dates, []string{"2024-05-01", "2024-05-01"}) {
		t.Fatalf("unexpected dates: %v", dates)
	}
	if status := recorder.Header().Get(WorkoutDatesStatusHeader); status != "ok" {
		t.Fatalf("expected ok status header, got %q", status)
	}
	if !reflect.DeepEqual(resolver.athleteIDs, []int64{3721045}) {
		t.Fatalf("expected configured athlete, got %v", resolver.athleteIDs)
	}
}

func TestHandleWorkoutDatesFailureIsEmptyArray(t *testing.T) {
	gin.SetMode(gin.TestMode)

	resolver := &stubResolver{results: map[int64]workouts.Result{
		1: {Status: workouts.StatusError, Reason: "token_refresher.refresh_failed"},
	}}
	router := gin.New()
	router.GET("/workout-dates", HandleWorkoutDates(zaptest.NewLogger(t), resolver, 1))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/workout-dates", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 even on failure, got %d", recorder.Code)
	}
	if body := recorder.Body.String(); body != "[]" {
		t.Fatalf("expected empty JSON array, got %q", body)
	}
	if status := recorder.Header().Get(WorkoutDatesStatusHeader); status != "error" {
		t.Fatalf("expected error status header, got %q", status)
	}
}

func TestHandleAthleteWorkoutDates(t *testing.T) {
	gin.SetMode(gin.TestMode)

	resolver := &stubResolver{results: map[int64]workouts.Result{
		42: {Dates: []string{"2024-06-02"}, Status: workouts.StatusOK},
	}}
	router := gin.New()
	MountWorkoutRoutes(router, zap.NewNop(), resolver, 1)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/athletes/42/workout-dates", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if dates := decodeDates(t, recorder); !reflect.DeepEqual(dates, []string{"2024-06-02"}) {
		t.Fatalf("unexpected dates: %v", dates)
	}

	for _, path := range []string{"/athletes/abc/workout-dates", "/athletes/-5/workout-dates"} {
		badRecorder := httptest.NewRecorder()
		router.ServeHTTP(badRecorder, httptest.NewRequest(http.MethodGet, path, nil))
		if badRecorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", path, badRecorder.Code)
		}
	}
	if !reflect.DeepEqual(resolver.athleteIDs, []int64{42}) {
		t.Fatalf("resolver must not be called for invalid ids, got %v", resolver.athleteIDs)
	}
}

func TestConfigureCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	middleware, err := ConfigureCORS(zap.NewNop(), []string{"http://localhost:3000"})
	if err != nil {
		t.Fatalf("unexpected error configuring CORS: %v", err)
	}
	router.Use(middleware)
	router.GET("/workout-dates", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, []string{})
	})

	preflight := httptest.NewRequest(http.MethodOptions, "/workout-dates", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodGet)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, preflight)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from preflight, got %d", recorder.Code)
	}
	if origin := recorder.Header().Get("Access-Control-Allow-Origin"); origin != "http://localhost:3000" {
		t.Fatalf("unexpected allowed origin header: %q", origin)
	}
	if credentials := recorder.Header().Get("Access-Control-Allow-Credentials"); credentials != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", credentials)
	}

	foreign := httptest.NewRequest(http.MethodGet, "/workout-dates", nil)
	foreign.Header.Set("Origin", "https://evil.example")
	foreignRecorder := httptest.NewRecorder()
	router.ServeHTTP(foreignRecorder, foreign)
	if foreignRecorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %d", foreignRecorder.Code)
	}
}

func TestConfigureCORSRejectsInvalidOrigins(t *testing.T) {
	testCases := []struct {
		origins  []string
		expected error
	}{
		{origins: nil, expected: errNoAllowedOrigins},
		{origins: []string{"  "}, expected: errNoAllowedOrigins},
		{origins: []string{"*"}, expected: errWildcardOrigin},
		{origins: []string{"localhost:3000"}, expected: errMalformedOrigin},
		{origins: []string{"http://localhost:3000/app"}, expected: errMalformedOrigin},
		{origins: []string{"https://dates.example?x=1"}, expected: errMalformedOrigin},
		{origins: []string{"ftp://localhost"}, expected: errMalformedOrigin},
	}
	for _, testCase := range testCases {
		if _, err := ConfigureCORS(nil, testCase.origins); !errors.Is(err, testCase.expected) {
			t.Fatalf("expected %v for origins %v, got %v", testCase.expected, testCase.origins, err)
		}
	}
}

func TestSanitizeOriginsKeepsConfiguredOrder(t *testing.T) {
	sanitized, err := sanitizeOrigins(zap.NewNop(), []string{
		"https://dates.example",
		"HTTP://localhost:3000/",
		"http://localhost:3000",
		"  ",
		"https://app.dates.example ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"https://dates.example", "http://localhost:3000", "https://app.dates.example"}
	if !reflect.DeepEqual(sanitized, expected) {
		t.Fatalf("expected %v, got %v", expected, sanitized)
	}
}
