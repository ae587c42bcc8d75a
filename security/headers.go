package security

import (
	"net/http"
	"net/url"
	"strconv"
)

// Default CORS values for the extension endpoints. Browser-based partner
// consoles call the token and verification endpoints cross-origin.
const (
	DefaultCORSAllowedOrigin  = "*"
	DefaultCORSAllowedHeaders = "Content-Type, Authorization"
	DefaultCORSAllowedMethods = "GET, POST, OPTIONS"
)

// SetSecurityHeaders sets the response headers shared by every OAuth endpoint.
// issuer decides whether HSTS is sent.
func SetSecurityHeaders(w http.ResponseWriter, issuer string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	h.Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(issuer); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// RFC 6749 section 5.1: token responses must not be cached.
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}

// CORSPolicy describes the Access-Control-* headers written on every response.
type CORSPolicy struct {
	AllowedOrigin  string
	AllowedHeaders string
	AllowedMethods string
	// MaxAge is the preflight cache lifetime in seconds. Zero omits the header.
	MaxAge int
}

// DefaultCORSPolicy allows any origin to call the endpoints with bearer or
// basic credentials.
func DefaultCORSPolicy() CORSPolicy {
	return CORSPolicy{
		AllowedOrigin:  DefaultCORSAllowedOrigin,
		AllowedHeaders: DefaultCORSAllowedHeaders,
		AllowedMethods: DefaultCORSAllowedMethods,
	}
}

// Apply writes the policy's headers. Empty fields fall back to the defaults.
func (p CORSPolicy) Apply(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", orDefault(p.AllowedOrigin, DefaultCORSAllowedOrigin))
	h.Set("Access-Control-Allow-Headers", orDefault(p.AllowedHeaders, DefaultCORSAllowedHeaders))
	h.Set("Access-Control-Allow-Methods", orDefault(p.AllowedMethods, DefaultCORSAllowedMethods))
	if p.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(p.MaxAge))
	}
	if p.AllowedOrigin != "" && p.AllowedOrigin != "*" {
		h.Add("Vary", "Origin")
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
