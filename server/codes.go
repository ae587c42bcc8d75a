package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/droneregistry/extension-oauth/internal/util"
	"github.com/droneregistry/extension-oauth/storage"
)

// authorizationCodeBytes is the entropy of an authorization code; the code
// is its lowercase hex encoding.
const authorizationCodeBytes = 32

// generateAuthorizationCode returns 64 lowercase hex characters.
func generateAuthorizationCode() (string, error) {
	b := make([]byte, authorizationCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IssueAuthorizationCode generates a code for params and stores it until
// now + AuthorizationCodeTTL. Code, CreatedAt and ExpiresAt of params are
// overwritten.
func (s *Server) IssueAuthorizationCode(ctx context.Context, params storage.AuthorizationCode) (*storage.AuthorizationCode, error) {
	code, err := generateAuthorizationCode()
	if err != nil {
		return nil, err
	}

	now := s.now()
	params.Code = code
	params.CreatedAt = now
	params.ExpiresAt = now.Add(s.Config.AuthorizationCodeTTL)

	if err := s.codes.SaveAuthorizationCode(ctx, &params); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.Logger.DebugContext(ctx, "Issued authorization code",
		"client_id", params.ClientID,
		"code_prefix", util.SafeTruncate(code, 8),
		"expires_at", params.ExpiresAt)
	return &params, nil
}

// RedeemAuthorizationCode consumes code and returns its metadata. The code
// is deleted whatever the outcome. Unknown, replayed and expired codes
// return invalid_grant; a backend failure returns server_error.
func (s *Server) RedeemAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	authCode, err := s.codes.RedeemAuthorizationCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			return nil, invalidGrant("code_not_found")
		}
		s.Logger.ErrorContext(ctx, "Failed to redeem authorization code",
			"code_prefix", util.SafeTruncate(code, 8),
			"error", err)
		return nil, wrapError(ErrorCodeServerError, "Internal server error", err)
	}

	if authCode.IsExpired(s.now()) {
		return nil, invalidGrant("code_expired")
	}
	return authCode, nil
}
