package oauth

import (
	"github.com/droneregistry/extension-oauth/security"
)

const (
	// DefaultRealm is the realm of the Basic challenge sent with invalid_client.
	DefaultRealm = "Sample Extension App"

	// DefaultMaxBodyBytes caps token and verification request bodies.
	DefaultMaxBodyBytes int64 = 64 << 10
)

// Config holds the HTTP handler configuration
type Config struct {
	// Issuer decides whether HSTS is sent. Default: the server's issuer.
	Issuer string

	// Realm is used in WWW-Authenticate: Basic realm="...".
	// Default: "Sample Extension App"
	Realm string

	// CORS is applied to every response. Default: security.DefaultCORSPolicy().
	CORS security.CORSPolicy

	// TrustProxy enables X-Forwarded-For and X-Real-IP for client IPs.
	// Only enable behind a reverse proxy that overwrites these headers.
	TrustProxy bool

	// TrustedProxyCount is the number of proxies in front of the server.
	TrustedProxyCount int

	// MaxBodyBytes caps request bodies. Default: 64 KiB.
	MaxBodyBytes int64
}

func (c Config) withDefaults(issuer string) Config {
	if c.Issuer == "" {
		c.Issuer = issuer
	}
	if c.Realm == "" {
		c.Realm = DefaultRealm
	}
	if c.CORS == (security.CORSPolicy{}) {
		c.CORS = security.DefaultCORSPolicy()
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}
