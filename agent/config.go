package agent

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds agent configuration.
type Config struct {
	// ClientID and ClientSecret identify this application to the
	// authorization server.
	ClientID     string
	ClientSecret string

	// AuthURL, TokenURL, and ResourceURL locate the two servers.
	AuthURL     string
	TokenURL    string
	ResourceURL string

	// HTTPTimeout bounds every outbound request.
	HTTPTimeout time.Duration
}

type configEnv struct {
	ClientID     string        `env:"CODEGRANT_AGENT_CLIENT_ID"`
	ClientSecret string        `env:"CODEGRANT_AGENT_CLIENT_SECRET"`
	AuthURL      string        `env:"CODEGRANT_AGENT_AUTH_URL" envDefault:"http://localhost:8000/authorize"`
	TokenURL     string        `env:"CODEGRANT_AGENT_TOKEN_URL" envDefault:"http://localhost:8000/token"`
	ResourceURL  string        `env:"CODEGRANT_AGENT_RESOURCE_URL" envDefault:"http://localhost:5000/resource"`
	HTTPTimeout  time.Duration `env:"CODEGRANT_AGENT_HTTP_TIMEOUT" envDefault:"10s"`
}

// LoadConfig loads agent configuration from the environment.
func LoadConfig() (*Config, error) {
	var raw configEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &Config{
		ClientID:     raw.ClientID,
		ClientSecret: raw.ClientSecret,
		AuthURL:      raw.AuthURL,
		TokenURL:     raw.TokenURL,
		ResourceURL:  raw.ResourceURL,
		HTTPTimeout:  raw.HTTPTimeout,
	}, nil
}

func applyDefaults(config *Config) *Config {
	if config.AuthURL == "" {
		config.AuthURL = "http://localhost:8000/authorize"
	}
	if config.TokenURL == "" {
		config.TokenURL = "http://localhost:8000/token"
	}
	if config.ResourceURL == "" {
		config.ResourceURL = "http://localhost:5000/resource"
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 10 * time.Second
	}
	return config
}
