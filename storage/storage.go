// Package storage defines interfaces for persisting OAuth clients,
// authorization codes, and access tokens. It supports pluggable backend
// implementations; the in-memory backend lives in storage/memory.
package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations.
var (
	// ErrClientNotFound indicates the client ID is not registered.
	ErrClientNotFound = errors.New("client not found")

	// ErrClientExists indicates a client with the same ID is already registered.
	ErrClientExists = errors.New("client already registered")

	// ErrInvalidSecret indicates the presented client secret does not match.
	ErrInvalidSecret = errors.New("invalid client secret")

	// ErrCodeNotFound indicates no authorization code is stored for the client.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrCodeMismatch indicates the presented code does not equal the stored one.
	ErrCodeMismatch = errors.New("authorization code mismatch")

	// ErrCodeExpired indicates the stored code's TTL has elapsed.
	ErrCodeExpired = errors.New("authorization code expired")

	// ErrTokenExists indicates an access token with the same value is already
	// stored. Token values are drawn from a space large enough that this is
	// never expected in practice.
	ErrTokenExists = errors.New("access token already exists")
)

// Client represents a registered OAuth client. Clients are configuration,
// not runtime-created: they are seeded into the store at server startup.
type Client struct {
	ID          string
	SecretHash  string // bcrypt hash, never the plaintext secret
	RedirectURI string
	Name        string
	CreatedAt   time.Time
}

// AuthorizationCode represents the single live code slot for a client.
// A new authorization flow for the same client overwrites the prior slot.
type AuthorizationCode struct {
	Code      string
	ClientID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the code's validity window has passed.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// AccessToken represents a minted bearer token record.
type AccessToken struct {
	Token     string
	ClientID  string
	ExpiresIn int64 // nominal lifetime in seconds, reported to the client
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token's validity window has passed.
func (t *AccessToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// CodeStore manages the per-client authorization code slot.
// All methods accept context.Context for tracing and cancellation.
type CodeStore interface {
	// SaveCode stores the code for its client, overwriting any existing slot.
	SaveCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeCode atomically compares the presented code against the stored
	// slot and deletes it on match. It returns ErrCodeNotFound when no slot
	// exists, ErrCodeMismatch when the values differ, and ErrCodeExpired when
	// the slot's TTL elapsed (expired slots are removed as a side effect).
	// SECURITY: This operation MUST be atomic so that concurrent exchanges of
	// the same code succeed at most once.
	ConsumeCode(ctx context.Context, clientID, code string) (*AuthorizationCode, error)
}

// TokenStore manages minted access tokens.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveToken inserts a new token record. Tokens are never overwritten.
	SaveToken(ctx context.Context, token *AccessToken) error

	// HasToken reports whether the token exists and is still valid.
	// Expired tokens report absent. The lookup has no side effects.
	HasToken(ctx context.Context, token string) (bool, error)
}

// ClientStore manages the registered client table.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient registers a client. Returns ErrClientExists on duplicate IDs.
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// VerifySecret checks a presented plaintext secret against the client's
	// stored hash. Returns ErrClientNotFound or ErrInvalidSecret on failure.
	VerifySecret(ctx context.Context, clientID, secret string) error

	// ListClients lists all registered clients.
	ListClients(ctx context.Context) ([]*Client, error)
}
