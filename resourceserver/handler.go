package resourceserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oauthlab/codegrant/instrumentation"
	"github.com/oauthlab/codegrant/security"
)

// ResourceResponse is the payload returned for an authorized request.
type ResourceResponse struct {
	Resources []string `json:"resources"`
}

// errorResponse is the uniform rejection body. Every unauthorized request
// gets the same shape and wording so callers cannot distinguish a missing
// header from an expired token.
type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the protected resource endpoint.
type Handler struct {
	config          *Config
	validator       *Validator
	auditor         *security.Auditor
	instrumentation *instrumentation.Instrumentation
	logger          *slog.Logger
	tracer          trace.Tracer
}

// NewHandler creates a resource server handler. The validator is required;
// auditor and instrumentation are optional.
func NewHandler(config *Config, validator *Validator, logger *slog.Logger) *Handler {
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		config:    applyDefaults(config),
		validator: validator,
		logger:    logger,
	}
}

// SetAuditor sets the security auditor.
func (h *Handler) SetAuditor(aud *security.Auditor) {
	h.auditor = aud
}

// SetInstrumentation sets OpenTelemetry instrumentation.
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	h.instrumentation = inst
	if inst != nil {
		h.tracer = inst.Tracer("resourceserver")
	}
}

// Routes returns a mux with the resource endpoint registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/resource", security.RequestIDMiddleware(http.HandlerFunc(h.ServeResource)))
	return mux
}

// ServeResource handles GET /resource. The interaction is stateless: each
// request is independently authenticated via remote token validation, and
// every failure mode yields the same 401 body.
func (h *Handler) ServeResource(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r, "resource")
	defer span.End()

	security.SetSecurityHeaders(w, "")

	if r.Method != http.MethodGet {
		h.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "invalid token"})
		h.recordRequest(r, http.StatusMethodNotAllowed, start)
		return
	}

	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		h.deny(ctx, w, r, "missing_or_malformed_authorization", start)
		return
	}

	valid, err := h.validator.Validate(ctx, token)
	if err != nil {
		// Fail closed: an unreachable or slow authorization server means
		// the token cannot be vouched for.
		h.logger.Warn("Token validation failed", "error", err)
		instrumentation.RecordError(span, err)
		h.deny(ctx, w, r, "validation_unavailable", start)
		return
	}
	if !valid {
		h.deny(ctx, w, r, "invalid_token", start)
		return
	}

	if h.instrumentation != nil {
		h.instrumentation.Metrics().RecordResourceServed(ctx, true)
	}
	instrumentation.SetSpanSuccess(span)

	h.writeJSON(w, http.StatusOK, ResourceResponse{Resources: h.config.Resources})
	h.recordRequest(r, http.StatusOK, start)
}

// deny writes the uniform 401 rejection and records the reason internally.
func (h *Handler) deny(ctx context.Context, w http.ResponseWriter, r *http.Request, reason string, start time.Time) {
	ip := security.GetClientIP(r, h.config.TrustProxy, h.config.TrustedProxyCount)
	h.auditor.LogAuthFailure("", ip, reason)
	if h.instrumentation != nil {
		h.instrumentation.Metrics().RecordResourceServed(ctx, false)
	}

	h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
	h.recordRequest(r, http.StatusUnauthorized, start)
}

// bearerToken extracts the token from an Authorization header. The scheme
// comparison is case-insensitive; an empty token is treated as absent.
func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

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

func (h *Handler) recordRequest(r *http.Request, status int, start time.Time) {
	if h.instrumentation == nil {
		return
	}
	h.instrumentation.Metrics().RecordHTTPRequest(
		r.Context(), "/resource", r.Method, status, float64(time.Since(start).Milliseconds()))
}
