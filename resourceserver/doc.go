// Package resourceserver implements the protected resource server. It owns
// no token state: every request's bearer token is validated remotely against
// the authorization server, and any doubt (timeouts, transport errors,
// unexpected responses) denies access.
package resourceserver
