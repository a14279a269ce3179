package authserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oauthlab/codegrant/instrumentation"
	"github.com/oauthlab/codegrant/security"
	"github.com/oauthlab/codegrant/storage"
)

// Server implements the authorization server side of the authorization code
// grant: it issues codes after consent, exchanges them for access tokens
// after client-credential verification, and answers validation queries.
//
// Per client interaction the flow moves AWAITING_CONSENT -> CODE_ISSUED ->
// TOKEN_ISSUED; the state lives entirely in the stores, so the server itself
// is safe for concurrent use.
type Server struct {
	codes   storage.CodeStore
	tokens  storage.TokenStore
	clients storage.ClientStore

	auditor         *security.Auditor
	rateLimiter     *security.RateLimiter
	instrumentation *instrumentation.Instrumentation

	logger *slog.Logger
	config *Config
}

// New creates a new authorization server and seeds the configured clients
// into the client store. Secrets are bcrypt-hashed before storage.
func New(
	codes storage.CodeStore,
	tokens storage.TokenStore,
	clients storage.ClientStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if codes == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config, logger)

	s := &Server{
		codes:   codes,
		tokens:  tokens,
		clients: clients,
		logger:  logger,
		config:  config,
	}

	if err := s.seedClients(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// seedClients registers the configured client table.
func (s *Server) seedClients(ctx context.Context) error {
	for _, cc := range s.config.Clients {
		if cc.ID == "" {
			return fmt.Errorf("client with empty ID in configuration")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(cc.Secret), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash secret for client %q: %w", cc.ID, err)
		}

		client := &storage.Client{
			ID:          cc.ID,
			SecretHash:  string(hash),
			RedirectURI: cc.RedirectURI,
			Name:        cc.Name,
			CreatedAt:   time.Now(),
		}
		if err := s.clients.SaveClient(ctx, client); err != nil {
			return fmt.Errorf("failed to register client %q: %w", cc.ID, err)
		}

		s.logger.Info("Registered OAuth client",
			"client_id", cc.ID,
			"client_name", cc.Name)
	}

	return nil
}

// SetAuditor sets the security auditor.
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.auditor = aud
}

// SetRateLimiter sets the per-IP rate limiter used by the HTTP layer.
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.rateLimiter = rl
}

// SetInstrumentation sets OpenTelemetry instrumentation.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Authorize verifies the client identifier at the start of a flow. A known
// client transitions the interaction into AWAITING_CONSENT; the consent
// prompt itself is presentation and mints nothing.
func (s *Server) Authorize(ctx context.Context, clientID string) (*storage.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		s.auditor.LogAuthFailure(clientID, "", "unknown_client")
		return nil, ErrInvalidClient("Invalid client")
	}

	return client, nil
}

// IssueCode generates a fresh authorization code for the client after the
// user confirmed consent, stores it, and returns it for display. A second
// flow for the same client overwrites the prior slot, invalidating any
// in-flight code for that client.
func (s *Server) IssueCode(ctx context.Context, clientID string) (string, error) {
	if clientID == "" {
		return "", ErrInvalidRequest("client_id is required")
	}

	code := security.GenerateAuthorizationCode()
	now := time.Now()

	record := &storage.AuthorizationCode{
		Code:      code,
		ClientID:  clientID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.AuthorizationCodeTTL),
	}
	if err := s.codes.SaveCode(ctx, record); err != nil {
		return "", ErrServerError("Failed to store authorization code")
	}

	s.auditor.LogCodeIssued(clientID, code, "")
	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordCodeIssued(ctx, clientID)
	}

	s.logger.Info("Authorization code issued",
		"client_id", clientID,
		"code_hash", security.HashForLogging(code))

	return code, nil
}

// Exchange trades an authorization code for an access token. Client
// credentials are verified before the code is inspected, so a stolen code
// presented with the wrong credentials fails as invalid_client and leaves
// the code slot untouched. The code is consumed atomically: of N concurrent
// exchanges of the same code, exactly one mints a token.
func (s *Server) Exchange(ctx context.Context, code, clientID, clientSecret string) (*TokenResponse, error) {
	if err := s.clients.VerifySecret(ctx, clientID, clientSecret); err != nil {
		s.auditor.LogAuthFailure(clientID, "", "invalid_client_credentials")
		s.recordExchange(ctx, clientID, false)
		return nil, ErrInvalidClient("Invalid client credentials")
	}

	if _, err := s.codes.ConsumeCode(ctx, clientID, code); err != nil {
		reason := "invalid_authorization_code"
		switch {
		case errors.Is(err, storage.ErrCodeExpired):
			reason = "authorization_code_expired"
		case errors.Is(err, storage.ErrCodeNotFound):
			// Either no code was ever issued or it was already consumed;
			// both surface identically to the caller.
			reason = "authorization_code_consumed_or_missing"
		}
		s.auditor.LogAuthFailure(clientID, "", reason)
		s.recordExchange(ctx, clientID, false)
		return nil, ErrInvalidGrant("Invalid authorization code")
	}

	token := security.GenerateAccessToken()
	expiresIn := int64(s.config.AccessTokenTTL.Seconds())
	now := time.Now()

	record := &storage.AccessToken{
		Token:     token,
		ClientID:  clientID,
		ExpiresIn: expiresIn,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.AccessTokenTTL),
	}
	if err := s.tokens.SaveToken(ctx, record); err != nil {
		return nil, ErrServerError("Failed to store access token")
	}

	s.auditor.LogTokenIssued(clientID, "", expiresIn)
	s.recordExchange(ctx, clientID, true)

	s.logger.Info("Access token issued",
		"client_id", clientID,
		"expires_in", expiresIn)

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
	}, nil
}

// Validate answers a token validation query. It is a pure lookup available
// regardless of any client's position in the grant flow; unknown and expired
// tokens are both simply invalid.
func (s *Server) Validate(ctx context.Context, accessToken string) (bool, error) {
	valid, err := s.tokens.HasToken(ctx, accessToken)
	if err != nil {
		return false, ErrServerError("Failed to look up token")
	}

	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordTokenValidated(ctx, valid)
	}

	return valid, nil
}

func (s *Server) recordExchange(ctx context.Context, clientID string, success bool) {
	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordCodeExchanged(ctx, clientID, success)
	}
}
