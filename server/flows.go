package server

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/droneregistry/extension-oauth/instrumentation"
	"github.com/droneregistry/extension-oauth/internal/util"
	"github.com/droneregistry/extension-oauth/security"
	"github.com/droneregistry/extension-oauth/storage"
	"github.com/droneregistry/extension-oauth/token"
)

// Grant types accepted at the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeClientCredentials = "client_credentials"
)

// AuthorizationRequest carries the parameters of /oauth/authorize.
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	State               string
	Scope               string
	Prompt              string
	AccessType          string
	CodeChallenge       string
	CodeChallengeMethod string

	// ClientIP is used for audit logging only.
	ClientIP string
}

// StartAuthorization validates an authorization request, issues a code and
// returns the URL to redirect the user agent to.
func (s *Server) StartAuthorization(ctx context.Context, req AuthorizationRequest) (string, error) {
	ctx, span := s.startSpan(ctx, "authorize")
	defer span.End()

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrResponseType, req.ResponseType),
	)

	reject := func(err *Error) (string, error) {
		s.Auditor.LogAuthFailure(ctx, security.EventAuthorizationRejected, req.ClientID, req.ClientIP, err.Description)
		s.spanError(span, err)
		return "", err
	}

	if req.ResponseType != ResponseTypeCode {
		return reject(NewError(ErrorCodeInvalidRequest, "response_type must be 'code'"))
	}
	if req.ClientID == "" {
		return reject(NewError(ErrorCodeInvalidRequest, "client_id is required"))
	}

	client, err := s.GetClient(ctx, req.ClientID)
	if err != nil {
		var oauthErr *Error
		errors.As(err, &oauthErr)
		return reject(oauthErr)
	}

	if req.Prompt != "" && req.Prompt != PromptConsent {
		return reject(NewError(ErrorCodeInvalidRequest, "prompt must be 'consent' when present"))
	}

	redirectURI, bound, err := resolveRedirectURI(client, req.RedirectURI)
	if err != nil {
		return reject(wrapError(ErrorCodeInvalidRequest, err.Error(), err))
	}

	method, err := s.resolvePKCEMethod(req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return reject(wrapError(ErrorCodeInvalidRequest, err.Error(), err))
	}

	authCode, err := s.IssueAuthorizationCode(ctx, storage.AuthorizationCode{
		ClientID:            client.ClientID,
		RedirectURI:         redirectURI,
		RedirectURIBound:    bound,
		State:               req.State,
		Scope:               req.Scope,
		AccessType:          req.AccessType,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
	})
	if errors.Is(err, storage.ErrInvalidAuthorizationCode) {
		return reject(wrapError(ErrorCodeInvalidRequest, "Authorization request parameters are too large", err))
	}
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to issue authorization code", "client_id", client.ClientID, "error", err)
		oauthErr := wrapError(ErrorCodeServerError, "Internal server error", err)
		s.spanError(span, oauthErr)
		return "", oauthErr
	}

	location, err := buildRedirectURL(redirectURI, authCode.Code, req.State)
	if err != nil {
		return reject(wrapError(ErrorCodeInvalidRequest, "invalid redirect_uri", err))
	}

	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordAuthorizationCodeIssued(ctx, client.ClientID, method)
	}
	s.Auditor.LogCodeIssued(ctx, client.ClientID, req.ClientIP, req.Scope, method != "")

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrPKCEMethod, method),
		attribute.String(instrumentation.AttrAccessType, req.AccessType),
		attribute.Bool(instrumentation.AttrRedirectBound, bound),
	)
	instrumentation.SetSpanSuccess(span)
	return location, nil
}

// ExchangeAuthorizationCode redeems code for an access token on behalf of
// an authenticated client. It returns the token and the granted scope,
// which is empty when the authorization request carried none.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, client *storage.Client, code, redirectURI, codeVerifier, clientIP string) (*oauth2.Token, string, error) {
	ctx, span := s.startSpan(ctx, "exchange_authorization_code")
	defer span.End()

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, client.ClientID),
		attribute.String(instrumentation.AttrGrantType, GrantTypeAuthorizationCode),
	)

	fail := func(err *Error) (*oauth2.Token, string, error) {
		if err.Code == ErrorCodeInvalidGrant {
			reason := ""
			if err.Err != nil {
				reason = err.Err.Error()
			}
			s.Logger.DebugContext(ctx, "Authorization code validation failed",
				"reason", reason,
				"client_id", client.ClientID,
				"code_prefix", util.SafeTruncate(code, 8))
			if s.Instrumentation != nil {
				s.Instrumentation.Metrics().RecordInvalidGrant(ctx, reason)
			}
			s.Auditor.LogAuthFailure(ctx, security.EventInvalidGrant, client.ClientID, clientIP, reason)
		}
		s.spanError(span, err)
		return nil, "", err
	}

	if code == "" {
		return fail(NewError(ErrorCodeInvalidRequest, "code is required"))
	}

	authCode, err := s.RedeemAuthorizationCode(ctx, code)
	if err != nil {
		var oauthErr *Error
		errors.As(err, &oauthErr)
		return fail(oauthErr)
	}

	if authCode.ClientID != client.ClientID {
		return fail(invalidGrant("client_id_mismatch"))
	}

	if authCode.RedirectURIBound && authCode.RedirectURI != redirectURI {
		return fail(invalidGrant("redirect_uri_mismatch"))
	}

	if authCode.CodeChallenge != "" {
		if err := s.validatePKCE(authCode.CodeChallenge, authCode.CodeChallengeMethod, codeVerifier); err != nil {
			if s.Instrumentation != nil {
				s.Instrumentation.Metrics().RecordPKCEValidationFailed(ctx, authCode.CodeChallengeMethod)
			}
			s.Auditor.LogEvent(ctx, security.Event{
				Type:      security.EventPKCEValidationFailed,
				ClientID:  client.ClientID,
				IPAddress: clientIP,
				Details: map[string]any{
					"reason": err.Error(),
					"method": authCode.CodeChallengeMethod,
				},
			})
			return fail(invalidGrant("pkce_validation_failed"))
		}
	}

	tok, err := s.issueToken(ctx, client.ClientID, authCode.Scope, GrantTypeAuthorizationCode, clientIP)
	if err != nil {
		s.spanError(span, err)
		return nil, "", err
	}

	if authCode.AccessType == AccessTypeOffline {
		tok.RefreshToken = oauth2.GenerateVerifier()
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrScope, authCode.Scope))
	instrumentation.SetSpanSuccess(span)
	return tok, authCode.Scope, nil
}

// IssueClientCredentialsToken grants a token to an authenticated client
// directly. It returns the token and the requested scope.
func (s *Server) IssueClientCredentialsToken(ctx context.Context, client *storage.Client, scope, clientIP string) (*oauth2.Token, string, error) {
	ctx, span := s.startSpan(ctx, "client_credentials")
	defer span.End()

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, client.ClientID),
		attribute.String(instrumentation.AttrGrantType, GrantTypeClientCredentials),
		attribute.String(instrumentation.AttrScope, scope),
	)

	tok, err := s.issueToken(ctx, client.ClientID, scope, GrantTypeClientCredentials, clientIP)
	if err != nil {
		s.spanError(span, err)
		return nil, "", err
	}

	instrumentation.SetSpanSuccess(span)
	return tok, scope, nil
}

func (s *Server) issueToken(ctx context.Context, clientID, scope, grantType, clientIP string) (*oauth2.Token, error) {
	if scope == "" {
		scope = s.Config.DefaultScope
	}

	access, err := s.tokens.Issue(clientID, scope)
	if err != nil {
		s.Logger.ErrorContext(ctx, "Failed to issue access token", "client_id", clientID, "error", err)
		return nil, wrapError(ErrorCodeServerError, "Internal server error", err)
	}

	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordTokenIssued(ctx, clientID, grantType)
	}
	s.Auditor.LogTokenIssued(ctx, clientID, clientIP, grantType, scope)

	return &oauth2.Token{
		AccessToken: access.Value,
		TokenType:   token.TypeBearer,
		Expiry:      access.ExpiresAt,
		ExpiresIn:   access.ExpiresIn(),
	}, nil
}
