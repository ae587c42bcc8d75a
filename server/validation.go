package server

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/droneregistry/extension-oauth/security"
	"github.com/droneregistry/extension-oauth/storage"
)

// PKCE validation constants (RFC 7636)
const (
	MinCodeVerifierLength = 43
	MaxCodeVerifierLength = 128
	PKCEMethodS256        = "S256"
	PKCEMethodPlain       = "plain"
)

// URI scheme constants
const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
)

// Request parameter values understood by the authorization endpoint.
const (
	ResponseTypeCode  = "code"
	PromptConsent     = "consent"
	AccessTypeOffline = "offline"
)

// resolveRedirectURI returns the redirect target for an authorization
// request and whether the resulting code is bound to it.
func resolveRedirectURI(client *storage.Client, requested string) (string, bool, error) {
	if requested == "" {
		def := client.DefaultRedirectURI()
		if def == "" {
			return "", false, fmt.Errorf("redirect_uri is required: client has no registered redirect URI")
		}
		return def, false, nil
	}

	if err := validateRedirectURIFormat(requested); err != nil {
		return "", false, err
	}
	if len(client.RedirectURIs) > 0 && !client.HasRedirectURI(requested) {
		return "", false, fmt.Errorf("redirect URI not registered for client")
	}
	return requested, true, nil
}

// validateRedirectURIFormat requires an absolute http(s) URI without a
// fragment (RFC 6749 §3.1.2).
func validateRedirectURIFormat(redirectURI string) error {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri format: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("redirect_uri must be an absolute URI")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != SchemeHTTP && scheme != SchemeHTTPS {
		return fmt.Errorf("redirect_uri scheme must be http or https")
	}
	if u.Fragment != "" || strings.Contains(redirectURI, "#") {
		return fmt.Errorf("redirect_uri must not contain a fragment")
	}
	return nil
}

// resolvePKCEMethod checks the challenge parameters of an authorization
// request and returns the method to record. The method defaults to plain
// when a challenge is present (RFC 7636 §4.3).
func (s *Server) resolvePKCEMethod(challenge, method string) (string, error) {
	if challenge == "" {
		if method != "" {
			return "", fmt.Errorf("code_challenge_method requires code_challenge")
		}
		return "", nil
	}

	if method == "" {
		method = PKCEMethodPlain
	}

	switch method {
	case PKCEMethodS256:
	case PKCEMethodPlain:
		if !s.Config.AllowPKCEPlain {
			return "", fmt.Errorf("'plain' code_challenge_method is not allowed (only S256 is supported)")
		}
	default:
		return "", fmt.Errorf("unsupported code_challenge_method: %s", method)
	}

	// A challenge follows the same syntax as a verifier; S256 output is always 43 chars.
	if err := validateVerifierSyntax(challenge); err != nil {
		return "", fmt.Errorf("invalid code_challenge: %w", err)
	}
	return method, nil
}

// validatePKCE validates the PKCE code verifier against the challenge per RFC 7636
func (s *Server) validatePKCE(challenge, method, verifier string) error {
	if challenge == "" {
		return nil
	}

	if verifier == "" {
		return fmt.Errorf("code_verifier is required when code_challenge is present")
	}
	if err := validateVerifierSyntax(verifier); err != nil {
		return err
	}

	var computedChallenge string
	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computedChallenge = base64.RawURLEncoding.EncodeToString(hash[:])

	case PKCEMethodPlain, "":
		computedChallenge = verifier

	default:
		return fmt.Errorf("unsupported code_challenge_method: %s", method)
	}

	if !security.ConstantTimeEqual(computedChallenge, challenge) {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}
	return nil
}

// validateVerifierSyntax enforces 43-128 characters of [A-Za-z0-9-._~].
func validateVerifierSyntax(verifier string) error {
	if len(verifier) < MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters (RFC 7636)", MinCodeVerifierLength)
	}
	if len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters (RFC 7636)", MaxCodeVerifierLength)
	}

	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return fmt.Errorf("code_verifier contains invalid characters (must be [A-Za-z0-9-._~])")
		}
	}
	return nil
}

// buildRedirectURL appends code and state to redirectURI, keeping any
// query parameters it already carries.
func buildRedirectURL(redirectURI, code, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect_uri: %w", err)
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
