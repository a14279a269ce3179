package resourceserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Validator checks bearer tokens against the authorization server's
// validation endpoint.
type Validator struct {
	validateURL string
	httpClient  *http.Client
}

// NewValidator creates a validator for the given validation endpoint. Every
// call is bounded by timeout; the zero value defaults to 5 seconds.
func NewValidator(validateURL string, timeout time.Duration) *Validator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &Validator{
		validateURL: validateURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type validateRequest struct {
	AccessToken string `json:"access_token"`
}

type validateResponse struct {
	Status string `json:"status"`
}

// Validate asks the authorization server whether the token is valid. A
// definitive verdict returns (true, nil) or (false, nil); transport errors,
// timeouts, and unexpected responses return an error, which callers must
// treat as invalid.
func (v *Validator) Validate(ctx context.Context, token string) (bool, error) {
	body, err := json.Marshal(validateRequest{AccessToken: token})
	if err != nil {
		return false, fmt.Errorf("marshal validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.validateURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var vr validateResponse
		if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
			return false, fmt.Errorf("decode validation response: %w", err)
		}
		return vr.Status == "valid", nil
	case http.StatusUnauthorized:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected validation status %d", resp.StatusCode)
	}
}
