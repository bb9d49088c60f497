package tokenstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory store intended for tests and dev.
type MemoryStore struct {
	mutex         sync.Mutex
	accessTokens  map[int64]AthleteToken
	refreshTokens map[int64]string
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accessTokens:  make(map[int64]AthleteToken),
		refreshTokens: make(map[int64]string),
	}
}

// GetAthleteToken returns the cached access token for athleteID.
func (store *MemoryStore) GetAthleteToken(ctx context.Context, athleteID int64) (AthleteToken, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	token, ok := store.accessTokens[athleteID]
	if !ok {
		return AthleteToken{}, fmt.Errorf("token_store.get.memory: %w", ErrTokenNotFound)
	}
	return token, nil
}

// UpsertAthleteToken inserts or replaces the access token, truncating expiry to whole seconds.
func (store *MemoryStore) UpsertAthleteToken(ctx context.Context, token AthleteToken) error {
	if strings.TrimSpace(token.AccessToken) == "" {
		return fmt.Errorf("token_store.upsert.memory: %w", ErrEmptyToken)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	token.ExpiresAt = time.Unix(token.ExpiresAt.Unix(), 0).UTC()
	store.accessTokens[token.AthleteID] = token
	return nil
}

// GetRefreshToken returns the latest refresh token for athleteID.
func (store *MemoryStore) GetRefreshToken(ctx context.Context, athleteID int64) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	refreshToken, ok := store.refreshTokens[athleteID]
	if !ok {
		return "", fmt.Errorf("token_store.get_refresh.memory: %w", ErrRefreshTokenNotFound)
	}
	return refreshToken, nil
}

// SetRefreshToken inserts or replaces the refresh token for athleteID.
func (store *MemoryStore) SetRefreshToken(ctx context.Context, athleteID int64, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return fmt.Errorf("token_store.set_refresh.memory: %w", ErrEmptyToken)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	store.refreshTokens[athleteID] = refreshToken
	return nil
}
