package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClientNotFound is returned when a client id is not registered.
	ErrClientNotFound = errors.New("client not found")

	// ErrAuthorizationCodeNotFound is returned when a code does not exist,
	// either because it was never issued, was already redeemed, or has been
	// evicted by the backend after its TTL.
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrInvalidAuthorizationCode is returned by SaveAuthorizationCode for
	// codes missing required fields.
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
)

// ClientRegistry resolves client identifiers to their registration.
// Registries are populated at startup and never mutated afterwards.
type ClientRegistry interface {
	// GetClient returns the client registered under clientID, or an error
	// wrapping ErrClientNotFound.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// CodeStore persists authorization codes between the authorization and the
// token request.
//
// Implementations must make RedeemAuthorizationCode atomic: the entry is
// removed as part of the lookup, so that of any number of concurrent
// redeemers at most one observes the code. Expiry is enforced by the caller
// against AuthorizationCode.ExpiresAt; backends may drop expired entries
// earlier but are not required to.
type CodeStore interface {
	// SaveAuthorizationCode stores a freshly issued code until its ExpiresAt.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// RedeemAuthorizationCode returns the code's metadata and deletes it.
	// A missing code yields an error wrapping ErrAuthorizationCodeNotFound.
	RedeemAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// Client is a registered OAuth client.
type Client struct {
	ClientID string

	// ClientSecretHash is the bcrypt hash produced by security.HashClientSecret.
	ClientSecretHash []byte

	ClientName   string
	RedirectURIs []string
	CreatedAt    time.Time
}

// DefaultRedirectURI returns the first registered redirect URI, or "" when
// the client has none.
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AuthorizationCode is the metadata recorded when a code is issued.
type AuthorizationCode struct {
	Code     string
	ClientID string

	// RedirectURI is where the code was delivered. RedirectURIBound is true
	// when the client supplied it explicitly in the authorization request, in
	// which case the token request must present the same value.
	RedirectURI      string
	RedirectURIBound bool

	State      string
	Scope      string
	AccessType string

	CodeChallenge       string
	CodeChallengeMethod string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Validate checks the fields every stored code must carry.
func (c *AuthorizationCode) Validate() error {
	switch {
	case c == nil:
		return ErrInvalidAuthorizationCode
	case c.Code == "":
		return errors.Join(ErrInvalidAuthorizationCode, errors.New("code is empty"))
	case c.ClientID == "":
		return errors.Join(ErrInvalidAuthorizationCode, errors.New("client_id is empty"))
	case c.ExpiresAt.IsZero():
		return errors.Join(ErrInvalidAuthorizationCode, errors.New("expires_at is not set"))
	}
	return nil
}

// IsExpired reports whether the code is past its expiry at now.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Clone returns a copy that callers may modify freely.
func (c *AuthorizationCode) Clone() *AuthorizationCode {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
