package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/droneregistry/extension-oauth/instrumentation"
	"github.com/droneregistry/extension-oauth/security"
	"github.com/droneregistry/extension-oauth/server"
	"github.com/droneregistry/extension-oauth/verification"
)

// Endpoint names used in metrics, spans and audit records.
const (
	endpointAuthorize    = "authorize"
	endpointToken        = "token"
	endpointVerifyMobile = "verify_mobile"
	endpointNotFound     = "not_found"
)

// PhoneVerifier answers mobile verification lookups.
// *verification.Verifier implements it.
type PhoneVerifier interface {
	Verify(ctx context.Context, phoneNumber, region string) verification.Result
}

// Handler is a thin HTTP adapter for the authorization Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server      *server.Server
	verifier    PhoneVerifier
	rateLimiter *security.RateLimiter
	config      Config
	logger      *slog.Logger
	tracer      trace.Tracer // OpenTelemetry tracer for HTTP layer
}

// NewHandler creates a new HTTP handler. Instrumentation is picked up from
// srv, so call srv.SetInstrumentation first. A nil verifier leaves
// /oauth/verify-mobile unrouted.
func NewHandler(srv *server.Server, verifier PhoneVerifier, logger *slog.Logger, config Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:   srv,
		verifier: verifier,
		config:   config.withDefaults(srv.Config.Issuer),
		logger:   logger,
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// SetRateLimiter enables per-IP rate limiting on the OAuth endpoints.
func (h *Handler) SetRateLimiter(rl *security.RateLimiter) {
	h.rateLimiter = rl
}

// ServeAuthorization handles OAuth authorization requests. Parameters are
// read from the query string or, for POST, a form body.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP, endpointAuthorize) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return
	}

	params := r.Form
	location, err := h.server.StartAuthorization(r.Context(), server.AuthorizationRequest{
		ClientID:            params.Get("client_id"),
		RedirectURI:         params.Get("redirect_uri"),
		ResponseType:        params.Get("response_type"),
		State:               params.Get("state"),
		Scope:               params.Get("scope"),
		Prompt:              params.Get("prompt"),
		AccessType:          params.Get("access_type"),
		CodeChallenge:       params.Get("code_challenge"),
		CodeChallengeMethod: params.Get("code_challenge_method"),
		ClientIP:            clientIP,
	})
	if err != nil {
		h.writeServerError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.config.Issuer)
	http.Redirect(w, r, location, http.StatusFound)
}

// ServeToken handles the OAuth token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodPost) {
		return
	}

	ctx := r.Context()
	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP, endpointToken) {
		return
	}

	params, err := h.parseTokenRequest(w, r)
	if err != nil {
		h.logger.DebugContext(ctx, "Failed to parse token request", "error", err)
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request body", http.StatusBadRequest)
		return
	}

	clientID, clientSecret, err := clientCredentials(r, params)
	if err != nil {
		h.logger.DebugContext(ctx, "Malformed client credentials", "error", err)
		h.writeServerError(w, r, server.NewError(ErrorCodeInvalidClient, "Client authentication failed"))
		return
	}

	client, err := h.server.AuthenticateClient(ctx, clientID, clientSecret, clientIP)
	if err != nil {
		h.logger.WarnContext(ctx, "Client authentication failed", "client_id", clientID)
		h.writeServerError(w, r, err)
		return
	}

	var (
		tok   *oauth2.Token
		scope string
	)
	grantType := params.Get("grant_type")
	switch grantType {
	case "":
		h.writeError(w, ErrorCodeInvalidRequest, "Required parameter 'grant_type' missing", http.StatusBadRequest)
		return
	case server.GrantTypeAuthorizationCode:
		tok, scope, err = h.server.ExchangeAuthorizationCode(ctx, client,
			params.Get("code"), params.Get("redirect_uri"), params.Get("code_verifier"), clientIP)
	case server.GrantTypeClientCredentials:
		tok, scope, err = h.server.IssueClientCredentialsToken(ctx, client, params.Get("scope"), clientIP)
	default:
		h.writeError(w, ErrorCodeUnsupportedGrantType, fmt.Sprintf("Grant type %q is not supported", grantType), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeServerError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "Token issued", "client_id", client.ClientID, "grant_type", grantType)
	h.writeTokenResponse(w, tok, scope)
}

// ServeVerifyMobile handles the bearer-protected phone verification lookup.
func (h *Handler) ServeVerifyMobile(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodPost) {
		return
	}

	ctx := r.Context()
	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP, endpointVerifyMobile) {
		return
	}

	raw, ok := bearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Bearer realm=%q", h.config.Realm))
		h.writeError(w, ErrorMissingAuthorization, "Expected 'Authorization: Bearer <token>'", http.StatusUnauthorized)
		return
	}

	claims, err := h.server.ValidateToken(ctx, raw, clientIP)
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		h.writeError(w, ErrorInvalidBearerToken, "The access token is invalid or expired", http.StatusUnauthorized)
		return
	}

	var req VerifyMobileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)).Decode(&req); err != nil {
		h.logger.DebugContext(ctx, "Failed to decode verification request", "error", err)
		h.writeError(w, ErrorCodeInvalidRequest, "Request body must be a JSON object with phoneNumber and region", http.StatusBadRequest)
		return
	}
	if req.PhoneNumber == "" || req.Region == "" {
		h.writeError(w, ErrorCodeInvalidRequest, "phoneNumber and region are required", http.StatusBadRequest)
		return
	}

	result := h.verifier.Verify(ctx, string(req.PhoneNumber), string(req.Region))

	if inst := h.server.Instrumentation; inst != nil {
		inst.Metrics().RecordMobileVerification(ctx, result.Verified, result.FailureReason)
	}
	h.server.Auditor.LogEvent(ctx, security.Event{
		Type:      security.EventMobileVerified,
		ClientID:  claims.ClientID,
		IPAddress: clientIP,
		Details: map[string]any{
			"region":   string(req.Region),
			"verified": result.Verified,
			"reason":   result.FailureReason,
		},
	})
	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx),
		attribute.String(instrumentation.AttrClientID, claims.ClientID),
		attribute.String(instrumentation.AttrVerificationRegion, string(req.Region)),
		attribute.Bool(instrumentation.AttrVerified, result.Verified),
	)

	h.writeJSON(w, http.StatusOK, VerifyMobileResponse{
		Verified:            result.Verified,
		VerifyFailureReason: result.FailureReason,
	})
}

// ServePreflightRequest answers a CORS preflight for any path.
func (h *Handler) ServePreflightRequest(w http.ResponseWriter, _ *http.Request) {
	h.config.CORS.Apply(w)
	w.WriteHeader(http.StatusNoContent)
}

// ServeHealth reports liveness.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if !h.allowMethods(w, r, http.MethodGet) {
		return
	}
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) serveNotFound(w http.ResponseWriter, _ *http.Request) {
	h.writeError(w, ErrorCodeNotFound, descNotFound, http.StatusNotFound)
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP, endpoint string) bool {
	if h.rateLimiter == nil || h.rateLimiter.Allow(clientIP) {
		return false
	}

	ctx := r.Context()
	h.logger.WarnContext(ctx, "Rate limit exceeded", "endpoint", endpoint)
	if inst := h.server.Instrumentation; inst != nil {
		inst.Metrics().RecordRateLimitExceeded(ctx, endpoint)
	}
	h.server.Auditor.LogRateLimitExceeded(ctx, clientIP, endpoint)

	w.Header().Set("Retry-After", strconv.Itoa(h.rateLimiter.RetryAfter()))
	h.writeError(w, ErrorCodeRateLimitExceeded, descRateLimited, http.StatusTooManyRequests)
	return true
}

// allowMethods writes 405 and returns false unless r uses one of methods.
func (h *Handler) allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(append(methods, http.MethodOptions), ", "))
	h.writeError(w, ErrorCodeInvalidRequest, descMethodNotAllowed, http.StatusMethodNotAllowed)
	return false
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.config.TrustProxy, h.config.TrustedProxyCount)
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, tok *oauth2.Token, scope string) {
	expiresIn := tok.ExpiresIn
	if expiresIn == 0 && !tok.Expiry.IsZero() {
		expiresIn = int64(time.Until(tok.Expiry).Seconds())
	}

	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tokenType,
		ExpiresIn:    expiresIn,
		Scope:        scope,
		RefreshToken: tok.RefreshToken,
	})
}

// writeServerError writes err as an OAuth error response. Errors that are
// not *server.Error become server_error without detail.
func (h *Handler) writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	code := server.ErrorCode(err)
	description := descInternalError

	var oauthErr *server.Error
	if errors.As(err, &oauthErr) && code != ErrorCodeServerError {
		description = oauthErr.Description
	}

	switch code {
	case ErrorCodeServerError:
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	case ErrorCodeInvalidClient:
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", h.config.Realm))
	case ErrorCodeInvalidToken:
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}

	h.writeError(w, code, description, StatusForCode(code))
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	h.writeJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	security.SetSecurityHeaders(w, h.config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}
