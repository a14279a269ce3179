// Package testutil provides shared fixtures for tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oauthlab/codegrant/storage"
	"github.com/oauthlab/codegrant/storage/memory"
)

// Test client credentials used across packages.
const (
	TestClientID     = "sample-client-id"
	TestClientSecret = "sample-client-secret"
	TestClientName   = "Sample Client"
)

// NewLogger returns a logger that discards output, for quiet tests.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewStore creates a memory store with the test client registered. The
// store's cleanup goroutine is stopped when the test finishes.
func NewStore(t *testing.T) *memory.Store {
	t.Helper()

	store := memory.New()
	store.SetLogger(NewLogger())
	t.Cleanup(store.Stop)

	SeedClient(t, store, TestClientID, TestClientSecret)
	return store
}

// SeedClient registers a client with a bcrypt-hashed secret.
func SeedClient(t *testing.T, store *memory.Store, clientID, secret string) {
	t.Helper()

	// MinCost keeps test setup fast; production hashing uses DefaultCost.
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash test secret: %v", err)
	}

	err = store.SaveClient(context.Background(), &storage.Client{
		ID:         clientID,
		SecretHash: string(hash),
		Name:       TestClientName,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("failed to seed test client: %v", err)
	}
}

// SeedCode stores an authorization code that expires after ttl.
func SeedCode(t *testing.T, store *memory.Store, clientID, code string, ttl time.Duration) {
	t.Helper()

	now := time.Now()
	err := store.SaveCode(context.Background(), &storage.AuthorizationCode{
		Code:      code,
		ClientID:  clientID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		t.Fatalf("failed to seed authorization code: %v", err)
	}
}

// SeedToken stores an access token that expires after ttl.
func SeedToken(t *testing.T, store *memory.Store, clientID, token string, ttl time.Duration) {
	t.Helper()

	now := time.Now()
	err := store.SaveToken(context.Background(), &storage.AccessToken{
		Token:     token,
		ClientID:  clientID,
		ExpiresIn: int64(ttl.Seconds()),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		t.Fatalf("failed to seed access token: %v", err)
	}
}
