package token

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is the access token lifetime.
	DefaultTTL = time.Hour

	// DefaultScope is granted when a request names no scope.
	DefaultScope = "signature"

	// DefaultIssuer is the iss claim of the hosted extension app.
	DefaultIssuer = "https://droneextensionapp.netlify.app"

	// TypeBearer is the token_type of every issued token.
	TypeBearer = "Bearer"
)

// ErrInvalidToken is wrapped by every Verify failure.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims of an access token.
type Claims struct {
	ClientID string `json:"clientId"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// AccessToken is a signed token with its validity window.
type AccessToken struct {
	Value     string
	ClientID  string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresIn is the lifetime in whole seconds, as sent in expires_in.
func (t *AccessToken) ExpiresIn() int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt) / time.Second)
}

// Issuer signs and verifies access tokens with a shared HMAC secret.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer returns an Issuer signing with secret. An empty issuer uses
// DefaultIssuer.
func NewIssuer(secret []byte, issuer string, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret must not be empty")
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}

	i := &Issuer{
		key:    slices.Clone(secret),
		issuer: issuer,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for clientID. An empty scope becomes DefaultScope.
func (i *Issuer) Issue(clientID, scope string) (*AccessToken, error) {
	if clientID == "" {
		return nil, errors.New("token: client id must not be empty")
	}
	if scope == "" {
		scope = DefaultScope
	}

	// NumericDate has second precision; truncate first so exp-iat is exactly the TTL.
	issuedAt := i.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	claims := Claims{
		ClientID: clientID,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return nil, fmt.Errorf("token: failed to sign: %w", err)
	}

	return &AccessToken{
		Value:     signed,
		ClientID:  clientID,
		Scope:     scope,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks the signature, issuer, expiry and audience of raw and
// returns its claims. Every failure wraps ErrInvalidToken.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return i.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.ClientID == "" {
		return nil, fmt.Errorf("%w: missing clientId", ErrInvalidToken)
	}
	if !slices.Contains(claims.Audience, claims.ClientID) {
		return nil, fmt.Errorf("%w: audience does not include client", ErrInvalidToken)
	}

	return claims, nil
}
