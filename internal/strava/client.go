// Package strava calls the Strava OAuth token endpoint and the athlete activities feed.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Strava v3 API root.
const DefaultBaseURL = "https://www.strava.com/api/v3"

const (
	tokenPath      = "/oauth/token"
	activitiesPath = "/athlete/activities"

	maxErrorBodyBytes = 4 << 10
)

var (
	// ErrTokenRefreshFailed indicates the refresh grant was rejected or could not be sent.
	ErrTokenRefreshFailed = errors.New("strava.token_refresh_failed")
	// ErrMalformedTokenResponse indicates the token endpoint answered without a usable expiry.
	ErrMalformedTokenResponse = errors.New("strava.malformed_token_response")
	// ErrActivitiesFetchFailed indicates the activities feed could not be read.
	ErrActivitiesFetchFailed = errors.New("strava.activities_fetch_failed")
	// ErrEmptyCredential indicates a blank refresh or access token was supplied.
	ErrEmptyCredential = errors.New("strava.empty_credential")

	errMissingClientID = errors.New("strava.missing_client_id")
	errInvalidBaseURL  = errors.New("strava.invalid_base_url")
)

// Config identifies the OAuth application and the API root.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	HTTPClient   *http.Client
}

// TokenGrant is the result of a successful refresh grant.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Activity is the subset of a Strava activity summary this service reads.
type Activity struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	SportType      string `json:"sport_type"`
	StartDate      string `json:"start_date"`
	StartDateLocal string `json:"start_date_local"`
}

// Client talks to the Strava API on behalf of one OAuth application.
type Client struct {
	oauthConfig *oauth2.Config
	httpClient  *http.Client
	baseURL     string
}

// NewClient validates configuration and builds a Client.
func NewClient(configuration Config) (*Client, error) {
	if strings.TrimSpace(configuration.ClientID) == "" {
		return nil, errMissingClientID
	}
	baseURL := strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, parseErr := url.Parse(baseURL)
	if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", errInvalidBaseURL, baseURL)
	}
	httpClient := configuration.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		oauthConfig: &oauth2.Config{
			ClientID:     configuration.ClientID,
			ClientSecret: configuration.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + tokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		baseURL:    baseURL,
	}, nil
}

// RefreshToken exchanges refreshToken for a new access token. Strava rotates the refresh token on
// every exchange, so the returned grant carries the value to persist next.
func (client *Client) RefreshToken(ctx context.Context, refreshToken string) (TokenGrant, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenGrant{}, fmt.Errorf("strava.refresh: %w", ErrEmptyCredential)
	}
	requestContext := context.WithValue(ctx, oauth2.HTTPClient, client.httpClient)
	token, err := client.oauthConfig.TokenSource(requestContext, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return TokenGrant{}, fmt.Errorf("strava.refresh: %w: status %d: %s", ErrTokenRefreshFailed, retrieveErr.Response.StatusCode, truncateBody(retrieveErr.Body))
		}
		return TokenGrant{}, fmt.Errorf("strava.refresh: %w: %v", ErrTokenRefreshFailed, err)
	}
	expiresAt, ok := grantExpiry(token)
	if !ok {
		return TokenGrant{}, fmt.Errorf("strava.refresh: %w", ErrMalformedTokenResponse)
	}
	return TokenGrant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// ListActivities returns the first page of the athlete's activities in provider order.
func (client *Client) ListActivities(ctx context.Context, accessToken string) ([]Activity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("strava.activities: %w", ErrEmptyCredential)
	}
	bearerClient := client.bearerClient(accessToken)

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+activitiesPath, nil)
	if requestErr != nil {
		return nil, fmt.Errorf("strava.activities: %w", requestErr)
	}
	request.Header.Set("Accept", "application/json")

	response, doErr := bearerClient.Do(request)
	if doErr != nil {
		return nil, fmt.Errorf("strava.activities: %w: %v", ErrActivitiesFetchFailed, doErr)
	}
	defer response.Body.Close()

	if response.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("strava.activities: %w: status %d: %s", ErrActivitiesFetchFailed, response.StatusCode, truncateBody(body))
	}

	var activities []Activity
	if decodeErr := json.NewDecoder(response.Body).Decode(&activities); decodeErr != nil {
		return nil, fmt.Errorf("strava.activities: %w: %v", ErrActivitiesFetchFailed, decodeErr)
	}
	return activities, nil
}

// bearerClient wraps the configured transport with an Authorization header and keeps its timeout.
func (client *Client) bearerClient(accessToken string) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Base: client.httpClient.Transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: accessToken,
				TokenType:   "Bearer",
			}),
		},
		CheckRedirect: client.httpClient.CheckRedirect,
		Jar:           client.httpClient.Jar,
		Timeout:       client.httpClient.Timeout,
	}
}

// grantExpiry prefers the absolute expires_at Strava sends and falls back to expires_in.
func grantExpiry(token *oauth2.Token) (time.Time, bool) {
	switch value := token.Extra("expires_at").(type) {
	case float64:
		return time.Unix(int64(value), 0).UTC(), true
	case json.Number:
		seconds, err := value.Int64()
		if err == nil {
			return time.Unix(seconds, 0).UTC(), true
		}
	case string:
		var seconds int64
		if _, err := fmt.Sscan(value, &seconds); err == nil {
			return time.Unix(seconds, 0).UTC(), true
		}
	}
	if !token.Expiry.IsZero() {
		return time.Unix(token.Expiry.Unix(), 0).UTC(), true
	}
	return time.Time{}, false
}

func truncateBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) > maxErrorBodyBytes {
		trimmed = trimmed[:maxErrorBodyBytes]
	}
	return trimmed
}
