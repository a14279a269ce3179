// Package security provides the security primitives shared by the
// authorization and resource servers: cryptographically secure credential
// generation, audit logging with PII hashing, per-identifier rate limiting,
// secure response headers, request ID propagation, client IP extraction,
// and clock-skew-aware expiry checks.
package security
