// Package agent implements the client application side of the authorization
// code grant: it directs the user to the authorization server, exchanges the
// code they bring back for an access token, and fetches the protected
// resource with it.
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/oauthlab/codegrant/security"
)

// Agent drives one authorization code grant flow end to end.
type Agent struct {
	oauth       *oauth2.Config
	resourceURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New creates an agent for the given endpoints and client credentials.
func New(config *Config, logger *slog.Logger) (*Agent, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config)

	return &Agent{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		resourceURL: config.ResourceURL,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
		},
		logger: logger,
	}, nil
}

// AuthorizeURL returns the URL the user must visit to grant consent. The
// state parameter is generated fresh per call.
func (a *Agent) AuthorizeURL() string {
	return a.oauth.AuthCodeURL(security.RandomString(16))
}

// ExchangeCode trades an authorization code for an access token.
func (a *Agent) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}

	a.logger.Info("Access token obtained",
		"token_type", token.TokenType,
		"expires", token.Expiry)

	return token, nil
}

// FetchResources retrieves the protected resource with a bearer token.
func (a *Agent) FetchResources(ctx context.Context, accessToken string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build resource request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resource request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("resource server returned status %d", resp.StatusCode)
	}

	var body struct {
		Resources []string `json:"resources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode resource response: %w", err)
	}

	return body.Resources, nil
}

// Run walks the user through the full flow interactively: print the
// authorization URL, read the code they paste in, exchange it, and fetch
// the resource.
func (a *Agent) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Open the following URL in your browser and grant access:\n\n  %s\n\n", a.AuthorizeURL())
	fmt.Fprint(out, "Enter the authorization code: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read authorization code: %w", err)
		}
		return fmt.Errorf("no authorization code provided")
	}
	code := strings.TrimSpace(scanner.Text())
	if code == "" {
		return fmt.Errorf("no authorization code provided")
	}

	token, err := a.ExchangeCode(ctx, code)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nAccess token: %s\n", token.AccessToken)

	resources, err := a.FetchResources(ctx, token.AccessToken)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Resources: %s\n", strings.Join(resources, ", "))

	return nil
}
