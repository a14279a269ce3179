package authserver

// TokenResponse represents a successful token endpoint response.
type TokenResponse struct {
	// AccessToken is the minted bearer token.
	AccessToken string `json:"access_token"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the nominal lifetime in seconds of the access token.
	ExpiresIn int64 `json:"expires_in"`
}

// ValidateTokenRequest is the JSON body of a validation query.
type ValidateTokenRequest struct {
	AccessToken string `json:"access_token"`
}

// ValidateTokenResponse is the JSON body of a validation verdict.
// Status is "valid" (HTTP 200) or "invalid" (HTTP 401).
type ValidateTokenResponse struct {
	Status string `json:"status"`
}

// Validation verdicts.
const (
	StatusValid   = "valid"
	StatusInvalid = "invalid"
)

// ErrorResponse represents an OAuth error response body.
type ErrorResponse struct {
	Error string `json:"error"`

	// ErrorDescription provides additional information.
	ErrorDescription string `json:"error_description,omitempty"`
}
