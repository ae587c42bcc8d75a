package server

import (
	"context"
	"errors"

	"github.com/droneregistry/extension-oauth/instrumentation"
	"github.com/droneregistry/extension-oauth/security"
	"github.com/droneregistry/extension-oauth/storage"
)

// AuthenticateClient checks a client's credentials and returns its
// registration. Unknown clients are compared against a dummy hash so the
// response time does not reveal which client ids exist.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret, clientIP string) (*storage.Client, error) {
	ctx, span := s.startSpan(ctx, "authenticate_client")
	defer span.End()

	fail := func(reason string) error {
		if s.Instrumentation != nil {
			s.Instrumentation.Metrics().RecordClientAuthFailure(ctx, reason)
		}
		s.Auditor.LogAuthFailure(ctx, security.EventAuthFailure, clientID, clientIP, reason)
		err := wrapError(ErrorCodeInvalidClient, "Client authentication failed", errors.New(reason))
		s.spanError(span, err)
		return err
	}

	if clientID == "" || clientSecret == "" {
		return nil, fail("missing_credentials")
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if !errors.Is(err, storage.ErrClientNotFound) {
			s.Logger.ErrorContext(ctx, "Failed to look up client", "client_id", clientID, "error", err)
			oauthErr := wrapError(ErrorCodeServerError, "Internal server error", err)
			s.spanError(span, oauthErr)
			return nil, oauthErr
		}
		_ = security.CompareClientSecret(s.dummyHash, clientSecret)
		return nil, fail("unknown_client")
	}

	if !security.CompareClientSecret(client.ClientSecretHash, clientSecret) {
		return nil, fail("invalid_secret")
	}

	instrumentation.SetSpanSuccess(span)
	return client, nil
}

// GetClient returns the registration for clientID, or an
// unauthorized_client error when it is unknown.
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, wrapError(ErrorCodeUnauthorizedClient, "Unknown client", err)
		}
		return nil, wrapError(ErrorCodeServerError, "Internal server error", err)
	}
	return client, nil
}
