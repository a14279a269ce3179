package resourceserver

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds resource server configuration.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string

	// ValidateURL is the authorization server's token validation endpoint.
	ValidateURL string

	// ValidateTimeout bounds each remote validation call. On timeout the
	// request is denied.
	ValidateTimeout time.Duration

	// Resources is the payload returned to callers with a valid token.
	Resources []string

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this
	// server.
	TrustedProxyCount int
}

type configEnv struct {
	ListenAddr        string        `env:"CODEGRANT_RESOURCE_LISTEN_ADDR" envDefault:":5000"`
	ValidateURL       string        `env:"CODEGRANT_RESOURCE_VALIDATE_URL" envDefault:"http://localhost:8000/validate_token"`
	ValidateTimeout   time.Duration `env:"CODEGRANT_RESOURCE_VALIDATE_TIMEOUT" envDefault:"5s"`
	Resources         []string      `env:"CODEGRANT_RESOURCE_RESOURCES" envDefault:"youssef,essam"`
	TrustProxy        bool          `env:"CODEGRANT_RESOURCE_TRUST_PROXY"`
	TrustedProxyCount int           `env:"CODEGRANT_RESOURCE_TRUSTED_PROXIES" envDefault:"1"`
}

// LoadConfig loads resource server configuration from the environment.
func LoadConfig() (*Config, error) {
	var raw configEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &Config{
		ListenAddr:        raw.ListenAddr,
		ValidateURL:       raw.ValidateURL,
		ValidateTimeout:   raw.ValidateTimeout,
		Resources:         raw.Resources,
		TrustProxy:        raw.TrustProxy,
		TrustedProxyCount: raw.TrustedProxyCount,
	}, nil
}

func applyDefaults(config *Config) *Config {
	if config.ValidateTimeout == 0 {
		config.ValidateTimeout = 5 * time.Second
	}
	if len(config.Resources) == 0 {
		config.Resources = []string{"youssef", "essam"}
	}
	return config
}
