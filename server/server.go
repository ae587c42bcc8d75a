package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/droneregistry/extension-oauth/instrumentation"
	"github.com/droneregistry/extension-oauth/security"
	"github.com/droneregistry/extension-oauth/storage"
	"github.com/droneregistry/extension-oauth/token"
)

// TokenIssuer signs and verifies access tokens. *token.Issuer implements it.
type TokenIssuer interface {
	Issue(clientID, scope string) (*token.AccessToken, error)
	Verify(raw string) (*token.Claims, error)
}

// Server implements the authorization server logic.
type Server struct {
	clients storage.ClientRegistry
	codes   storage.CodeStore
	tokens  TokenIssuer

	// dummyHash is compared against when the client id is unknown.
	dummyHash []byte

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config

	tracer trace.Tracer
}

// New creates a new authorization server. A nil config uses DefaultConfig.
func New(
	clients storage.ClientRegistry,
	codes storage.CodeStore,
	tokens TokenIssuer,
	logger *slog.Logger,
	config *Config,
) (*Server, error) {
	if clients == nil {
		return nil, fmt.Errorf("client registry is required")
	}
	if codes == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = DefaultConfig()
	}
	config = applyDefaults(config, logger)

	dummyHash, err := security.NewDummySecretHash(config.ClientSecretCost)
	if err != nil {
		return nil, err
	}

	return &Server{
		clients:   clients,
		codes:     codes,
		tokens:    tokens,
		dummyHash: dummyHash,
		Logger:    logger,
		Config:    config,
	}, nil
}

// SetAuditor sets the security auditor.
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation enables spans and metrics for server operations.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// ValidateToken verifies a bearer token and returns its claims. Failures
// are returned as invalid_token errors.
func (s *Server) ValidateToken(ctx context.Context, raw, clientIP string) (*token.Claims, error) {
	ctx, span := s.startSpan(ctx, "validate_token")
	defer span.End()

	claims, err := s.tokens.Verify(raw)
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordTokenValidation(ctx, err == nil)
	}
	if err != nil {
		s.Logger.DebugContext(ctx, "Bearer token rejected", "error", err)
		s.Auditor.LogAuthFailure(ctx, security.EventTokenValidationFailed, "", clientIP, "invalid_token")

		oauthErr := wrapError(ErrorCodeInvalidToken, "The access token is invalid or expired", err)
		s.spanError(span, oauthErr)
		return nil, oauthErr
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrClientID, claims.ClientID))
	instrumentation.SetSpanSuccess(span)
	return claims, nil
}

func (s *Server) now() time.Time {
	return s.Config.Clock()
}

func (s *Server) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, noop.Span{}
	}
	return s.tracer.Start(ctx, "oauth.server."+operation)
}

// spanError attaches the OAuth error code of err to span.
func (s *Server) spanError(span trace.Span, err error) {
	if s.tracer == nil {
		return
	}
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		instrumentation.AddOAuthErrorAttributes(span, oauthErr.Code, oauthErr.Description)
		return
	}
	instrumentation.RecordError(span, err)
}
