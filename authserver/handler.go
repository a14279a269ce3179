package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oauthlab/codegrant/instrumentation"
	"github.com/oauthlab/codegrant/security"
)

// Handler exposes the authorization server over HTTP.
type Handler struct {
	server *Server
	logger *slog.Logger
	tracer trace.Tracer
}

// NewHandler creates an HTTP handler for the given server.
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: server,
		logger: logger,
	}
	if server.instrumentation != nil {
		h.tracer = server.instrumentation.Tracer("authserver")
	}

	return h
}

// Routes returns a mux with all authorization server endpoints registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes registers the endpoints on an existing mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/authorize", security.RequestIDMiddleware(http.HandlerFunc(h.ServeAuthorize)))
	mux.Handle("/callback", security.RequestIDMiddleware(http.HandlerFunc(h.ServeCallback)))
	mux.Handle("/token", security.RequestIDMiddleware(http.HandlerFunc(h.ServeToken)))
	mux.Handle("/validate_token", security.RequestIDMiddleware(http.HandlerFunc(h.ServeValidateToken)))
}

// ServeAuthorize handles GET /authorize. A recognized client_id yields the
// consent page; an unknown one is rejected before any consent is shown.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "authorize")
	defer span.End()

	security.SetSecurityHeaders(w, h.server.config.Issuer)

	if r.Method != http.MethodGet {
		h.writeError(w, ErrInvalidRequest("Method not allowed"), http.StatusMethodNotAllowed)
		h.recordRequest(r, "/authorize", http.StatusMethodNotAllowed, start)
		return
	}

	clientID := r.URL.Query().Get("client_id")
	client, err := h.server.Authorize(ctx, clientID)
	if err != nil {
		status := h.writeOAuthError(w, err)
		instrumentation.SetSpanError(span, err.Error())
		h.recordRequest(r, "/authorize", status, start)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderConsentPage(w, client.ID, client.Name); err != nil {
		h.logger.Error("Failed to render consent page", "error", err)
	}

	instrumentation.SetSpanSuccess(span)
	h.recordRequest(r, "/authorize", http.StatusOK, start)
}

// ServeCallback handles POST /callback: the user confirmed consent, so a
// fresh authorization code is issued and displayed.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "callback")
	defer span.End()

	security.SetSecurityHeaders(w, h.server.config.Issuer)

	if r.Method != http.MethodPost {
		h.writeError(w, ErrInvalidRequest("Method not allowed"), http.StatusMethodNotAllowed)
		h.recordRequest(r, "/callback", http.StatusMethodNotAllowed, start)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("Failed to parse form"), 0)
		h.recordRequest(r, "/callback", http.StatusBadRequest, start)
		return
	}

	clientID := r.PostFormValue("client_id")
	code, err := h.server.IssueCode(ctx, clientID)
	if err != nil {
		status := h.writeOAuthError(w, err)
		instrumentation.SetSpanError(span, err.Error())
		h.recordRequest(r, "/callback", status, start)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderCodePage(w, code); err != nil {
		h.logger.Error("Failed to render code page", "error", err)
	}

	instrumentation.SetSpanSuccess(span)
	h.recordRequest(r, "/callback", http.StatusOK, start)
}

// ServeToken handles POST /token: the authorization code grant exchange.
// Extra form fields such as grant_type and redirect_uri sent by standard
// OAuth2 client libraries are accepted and ignored.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "token")
	defer span.End()

	security.SetSecurityHeaders(w, h.server.config.Issuer)

	if r.Method != http.MethodPost {
		h.writeError(w, ErrInvalidRequest("Method not allowed"), http.StatusMethodNotAllowed)
		h.recordRequest(r, "/token", http.StatusMethodNotAllowed, start)
		return
	}

	if !h.allow(r) {
		h.writeError(w, NewOAuthError(ErrorCodeRateLimited, "Too many requests", http.StatusTooManyRequests), 0)
		h.recordRequest(r, "/token", http.StatusTooManyRequests, start)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrInvalidRequest("Failed to parse form"), 0)
		h.recordRequest(r, "/token", http.StatusBadRequest, start)
		return
	}

	code := r.PostFormValue("code")
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")

	token, err := h.server.Exchange(ctx, code, clientID, clientSecret)
	if err != nil {
		status := h.writeOAuthError(w, err)
		instrumentation.SetSpanError(span, err.Error())
		h.recordRequest(r, "/token", status, start)
		return
	}

	h.writeJSON(w, http.StatusOK, token)
	instrumentation.SetSpanSuccess(span)
	h.recordRequest(r, "/token", http.StatusOK, start)
}

// ServeValidateToken handles POST /validate_token. The response status and
// body always agree: 200 {"status":"valid"} or 401 {"status":"invalid"}.
func (h *Handler) ServeValidateToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "validate_token")
	defer span.End()

	security.SetSecurityHeaders(w, h.server.config.Issuer)

	if r.Method != http.MethodPost {
		h.writeError(w, ErrInvalidRequest("Method not allowed"), http.StatusMethodNotAllowed)
		h.recordRequest(r, "/validate_token", http.StatusMethodNotAllowed, start)
		return
	}

	var req ValidateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Malformed requests validate nothing.
		h.writeJSON(w, http.StatusUnauthorized, ValidateTokenResponse{Status: StatusInvalid})
		h.recordRequest(r, "/validate_token", http.StatusUnauthorized, start)
		return
	}

	valid, err := h.server.Validate(ctx, req.AccessToken)
	if err != nil {
		status := h.writeOAuthError(w, err)
		instrumentation.SetSpanError(span, err.Error())
		h.recordRequest(r, "/validate_token", status, start)
		return
	}

	if !valid {
		h.writeJSON(w, http.StatusUnauthorized, ValidateTokenResponse{Status: StatusInvalid})
		h.recordRequest(r, "/validate_token", http.StatusUnauthorized, start)
		return
	}

	h.writeJSON(w, http.StatusOK, ValidateTokenResponse{Status: StatusValid})
	instrumentation.SetSpanSuccess(span)
	h.recordRequest(r, "/validate_token", http.StatusOK, start)
}

// allow consults the rate limiter, keyed by client IP. A nil limiter
// allows everything.
func (h *Handler) allow(r *http.Request) bool {
	rl := h.server.rateLimiter
	if rl == nil {
		return true
	}

	ip := security.GetClientIP(r, h.server.config.TrustProxy, h.server.config.TrustedProxyCount)
	if rl.Allow(ip) {
		return true
	}

	h.server.auditor.LogRateLimitExceeded(ip)
	if h.server.instrumentation != nil {
		h.server.instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), "token_endpoint")
	}
	return false
}

// writeOAuthError writes err as a JSON error response and returns the HTTP
// status used. Non-OAuth errors become opaque server errors.
func (h *Handler) writeOAuthError(w http.ResponseWriter, err error) int {
	var oauthErr *OAuthError
	if !errors.As(err, &oauthErr) {
		oauthErr = ErrServerError("Internal server error")
	}
	h.writeError(w, oauthErr, 0)
	return oauthErr.Status
}

// writeError writes an OAuthError as JSON. statusOverride, when non-zero,
// replaces the error's own status.
func (h *Handler) writeError(w http.ResponseWriter, err *OAuthError, statusOverride int) {
	status := err.Status
	if statusOverride != 0 {
		status = statusOverride
	}
	h.writeJSON(w, status, ErrorResponse{
		Error:            err.Code,
		ErrorDescription: err.Description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// startSpan starts a tracing span for an endpoint. Without instrumentation
// it returns the request context and the ambient (noop) span.
func (h *Handler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	ctx := r.Context()
	if h.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return h.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String(instrumentation.AttrHTTPEndpoint, r.URL.Path),
		attribute.String(instrumentation.AttrHTTPMethod, r.Method),
	))
}

func (h *Handler) recordRequest(r *http.Request, endpoint string, status int, start time.Time) {
	if h.server.instrumentation == nil {
		return
	}
	h.server.instrumentation.Metrics().RecordHTTPRequest(
		r.Context(), endpoint, r.Method, status, float64(time.Since(start).Milliseconds()))
}
