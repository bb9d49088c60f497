package tokenstore

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreTruncatesExpiryToSeconds(t *testing.T) {
	store := NewMemoryStore()
	expiresAt := time.Unix(1700000000, 999_000_000)
	if err := store.UpsertAthleteToken(context.Background(), AthleteToken{AthleteID: 1, AccessToken: "a", ExpiresAt: expiresAt}); err != nil {
		t.Fatalf("upsert error: %v", err)
	}
	stored, err := store.GetAthleteToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if !stored.ExpiresAt.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("expected second granularity, got %v", stored.ExpiresAt)
	}
}
