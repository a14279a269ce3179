// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments; state does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/oauthlab/codegrant/instrumentation"
	"github.com/oauthlab/codegrant/security"
	"github.com/oauthlab/codegrant/storage"
)

// Store is an in-memory implementation of storage.CodeStore,
// storage.TokenStore, and storage.ClientStore.
//
// All access goes through a single mutex so that code consumption observes a
// consistent read of the most recent write for the same client. ConsumeCode
// performs its compare-and-delete entirely under the lock, which is what
// makes concurrent exchanges of the same code resolve to exactly one winner.
type Store struct {
	mu sync.RWMutex

	codes   map[string]*storage.AuthorizationCode // client ID -> live code slot
	tokens  map[string]*storage.AccessToken       // token value -> record
	clients map[string]*storage.Client

	// Atomic counters mirror map sizes for lock-free gauge collection.
	codesCount   atomic.Int64
	tokensCount  atomic.Int64
	clientsCount atomic.Int64

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks.
var (
	_ storage.CodeStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
	_ storage.ClientStore = (*Store)(nil)
)

// New creates an in-memory store with the default cleanup interval (1 minute).
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates an in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, the default of 1 minute is used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		codes:           make(map[string]*storage.AuthorizationCode),
		tokens:          make(map[string]*storage.AccessToken),
		clients:         make(map[string]*storage.Client),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.codesCount.Store(int64(len(s.codes)))
	s.tokensCount.Store(int64(len(s.tokens)))
	s.clientsCount.Store(int64(len(s.clients)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStoreSizeCallbacks(
			func() int64 { return s.codesCount.Load() },
			func() int64 { return s.tokensCount.Load() },
			func() int64 { return s.clientsCount.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register store size callbacks", "error", err)
		}
	}
}

// Stop terminates the background cleanup goroutine.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ============================================================
// CodeStore implementation
// ============================================================

// SaveCode stores the authorization code for its client, overwriting any
// existing slot. Overwriting is deliberate: a new authorization flow for the
// same client invalidates the prior, unconsumed code.
func (s *Store) SaveCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startSpan(ctx, "save_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "save_code", err, startTime) }()

	if code == nil {
		err = fmt.Errorf("code cannot be nil")
		return err
	}
	if code.ClientID == "" {
		err = fmt.Errorf("client ID cannot be empty")
		return err
	}
	if code.Code == "" {
		err = fmt.Errorf("code value cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.codes[code.ClientID]
	s.codes[code.ClientID] = code
	if !existed {
		s.codesCount.Add(1)
	} else {
		s.logger.Debug("Overwrote live authorization code slot",
			"client_id", code.ClientID)
	}

	return nil
}

// ConsumeCode atomically validates and deletes the code slot for clientID.
// On success the slot is removed, so any later exchange of the same code
// fails with ErrCodeNotFound.
func (s *Store) ConsumeCode(ctx context.Context, clientID, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startSpan(ctx, "consume_code")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "consume_code", err, startTime) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[clientID]
	if !ok {
		err = storage.ErrCodeNotFound
		return nil, err
	}

	if security.IsExpired(stored.ExpiresAt) {
		delete(s.codes, clientID)
		s.codesCount.Add(-1)
		err = storage.ErrCodeExpired
		return nil, err
	}

	if stored.Code != code {
		err = storage.ErrCodeMismatch
		return nil, err
	}

	delete(s.codes, clientID)
	s.codesCount.Add(-1)

	return stored, nil
}

// ============================================================
// TokenStore implementation
// ============================================================

// SaveToken inserts a new access token record. Tokens are never overwritten;
// a collision means the generator is broken and is reported as an error.
func (s *Store) SaveToken(ctx context.Context, token *storage.AccessToken) error {
	ctx, span := s.startSpan(ctx, "save_token")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "save_token", err, startTime) }()

	if token == nil {
		err = fmt.Errorf("token cannot be nil")
		return err
	}
	if token.Token == "" {
		err = fmt.Errorf("token value cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.Token]; exists {
		err = storage.ErrTokenExists
		return err
	}

	s.tokens[token.Token] = token
	s.tokensCount.Add(1)

	s.logger.Debug("Saved access token",
		"client_id", token.ClientID,
		"token_hash", security.HashForLogging(token.Token))

	return nil
}

// HasToken reports whether the token exists and is still within its validity
// window. Pure lookup, no side effects.
func (s *Store) HasToken(ctx context.Context, token string) (bool, error) {
	ctx, span := s.startSpan(ctx, "has_token")
	defer span.End()

	startTime := time.Now()
	defer func() { s.recordOperation(ctx, span, "has_token", nil, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.tokens[token]
	if !ok {
		return false, nil
	}
	if security.IsExpired(stored.ExpiresAt) {
		return false, nil
	}

	return true, nil
}

// ============================================================
// ClientStore implementation
// ============================================================

// SaveClient registers a client. Duplicate IDs are rejected so a seeding bug
// cannot silently replace a client's secret hash.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "save_client", err, startTime) }()

	if client == nil {
		err = fmt.Errorf("client cannot be nil")
		return err
	}
	if client.ID == "" {
		err = fmt.Errorf("client ID cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[client.ID]; exists {
		err = storage.ErrClientExists
		return err
	}

	s.clients[client.ID] = client
	s.clientsCount.Add(1)

	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "get_client", err, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = storage.ErrClientNotFound
		return nil, err
	}

	return client, nil
}

// VerifySecret compares a presented plaintext secret against the client's
// bcrypt hash. bcrypt's comparison is constant-time over the hash.
func (s *Store) VerifySecret(ctx context.Context, clientID, secret string) error {
	ctx, span := s.startSpan(ctx, "verify_secret")
	defer span.End()

	startTime := time.Now()
	var err error
	defer func() { s.recordOperation(ctx, span, "verify_secret", err, startTime) }()

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrClientNotFound
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(secret)) != nil {
		err = storage.ErrInvalidSecret
		return err
	}

	return nil
}

// ListClients lists all registered clients.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ctx, span := s.startSpan(ctx, "list_clients")
	defer span.End()

	startTime := time.Now()
	defer func() { s.recordOperation(ctx, span, "list_clients", nil, startTime) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}

	return clients, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanupExpired removes expired codes and tokens. Validation and exchange
// already treat expired entries as absent; cleanup only reclaims memory.
func (s *Store) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	removedCodes := 0
	for clientID, code := range s.codes {
		if security.IsExpired(code.ExpiresAt) {
			delete(s.codes, clientID)
			s.codesCount.Add(-1)
			removedCodes++
		}
	}

	removedTokens := 0
	for value, token := range s.tokens {
		if security.IsExpired(token.ExpiresAt) {
			delete(s.tokens, value)
			s.tokensCount.Add(-1)
			removedTokens++
		}
	}

	if removedCodes > 0 || removedTokens > 0 {
		s.logger.Debug("Cleaned up expired entries",
			"codes", removedCodes,
			"tokens", removedTokens)
	}
}

// ============================================================
// Instrumentation helpers
// ============================================================

// startSpan starts a storage span if tracing is configured (nil-safe via
// the returned no-op span).
func (s *Store) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(attribute.String(instrumentation.AttrStorageOperation, operation)))
}

func (s *Store) recordOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if err != nil {
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	if s.instrumentation != nil {
		durationMs := float64(time.Since(startTime).Microseconds()) / 1000.0
		s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, err, durationMs)
	}
}
