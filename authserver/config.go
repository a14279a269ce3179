package authserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// ClientConfig describes one registered client in configuration. The secret
// is hashed before it reaches the store; plaintext lives only in config.
type ClientConfig struct {
	ID          string `json:"client_id"`
	Secret      string `json:"client_secret"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	Name        string `json:"client_name,omitempty"`
}

// Config holds authorization server configuration.
type Config struct {
	// Issuer is the server's base URL, used for security headers and logs.
	Issuer string

	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string

	// Clients is the registered client table, supplied at startup.
	Clients []ClientConfig

	// AuthorizationCodeTTL is how long issued codes stay exchangeable.
	// Default: 10 minutes.
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is the lifetime of minted access tokens.
	// Default: 1 hour (reported to clients as expires_in seconds).
	AccessTokenTTL time.Duration

	// RateLimitPerSecond and RateLimitBurst bound per-IP request rates on
	// the token and validation endpoints. Zero disables rate limiting.
	RateLimitPerSecond int
	RateLimitBurst     int

	// AuditEnabled turns on security audit logging.
	AuditEnabled bool

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this
	// server, used with TrustProxy to extract the client IP.
	TrustedProxyCount int
}

// configEnv holds raw environment values for Config.
type configEnv struct {
	Issuer               string        `env:"CODEGRANT_AUTH_ISSUER" envDefault:"http://localhost:8000"`
	ListenAddr           string        `env:"CODEGRANT_AUTH_LISTEN_ADDR" envDefault:":8000"`
	ClientsJSON          string        `env:"CODEGRANT_AUTH_CLIENTS"`
	AuthorizationCodeTTL time.Duration `env:"CODEGRANT_AUTH_CODE_TTL" envDefault:"10m"`
	AccessTokenTTL       time.Duration `env:"CODEGRANT_AUTH_TOKEN_TTL" envDefault:"1h"`
	RateLimitPerSecond   int           `env:"CODEGRANT_AUTH_RATE_LIMIT" envDefault:"20"`
	RateLimitBurst       int           `env:"CODEGRANT_AUTH_RATE_BURST" envDefault:"40"`
	AuditEnabled         bool          `env:"CODEGRANT_AUTH_AUDIT" envDefault:"true"`
	TrustProxy           bool          `env:"CODEGRANT_AUTH_TRUST_PROXY"`
	TrustedProxyCount    int           `env:"CODEGRANT_AUTH_TRUSTED_PROXIES" envDefault:"1"`
}

// LoadConfig loads authorization server configuration from the environment.
// CODEGRANT_AUTH_CLIENTS is a JSON array of client objects.
func LoadConfig() (*Config, error) {
	var raw configEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{
		Issuer:               raw.Issuer,
		ListenAddr:           raw.ListenAddr,
		AuthorizationCodeTTL: raw.AuthorizationCodeTTL,
		AccessTokenTTL:       raw.AccessTokenTTL,
		RateLimitPerSecond:   raw.RateLimitPerSecond,
		RateLimitBurst:       raw.RateLimitBurst,
		AuditEnabled:         raw.AuditEnabled,
		TrustProxy:           raw.TrustProxy,
		TrustedProxyCount:    raw.TrustedProxyCount,
	}

	if raw.ClientsJSON != "" {
		if err := json.Unmarshal([]byte(raw.ClientsJSON), &cfg.Clients); err != nil {
			return nil, fmt.Errorf("parse CODEGRANT_AUTH_CLIENTS: %w", err)
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values with secure defaults.
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 10 * time.Minute
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = time.Hour
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}

	if config.TrustProxy {
		logger.Warn("Trusting proxy headers for client IP extraction",
			"trusted_proxy_count", config.TrustedProxyCount)
	}

	return config
}
