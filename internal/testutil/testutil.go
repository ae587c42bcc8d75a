package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/droneregistry/extension-oauth/security"
	"github.com/droneregistry/extension-oauth/storage"
)

// MockTime is a clock that only moves when told to. It is safe for
// concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime returns a clock frozen at t.
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time.
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set moves the clock to t.
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// GenerateRandomString returns a URL-safe random string of length characters.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// GeneratePKCEPair returns an S256 challenge and its verifier.
func GeneratePKCEPair() (challenge, verifier string) {
	verifier = oauth2.GenerateVerifier()
	return oauth2.S256ChallengeFromVerifier(verifier), verifier
}

// NewTestClient returns a registration for clientID whose secret is hashed
// at bcrypt.MinCost to keep tests fast.
func NewTestClient(t *testing.T, clientID, secret string, redirectURIs ...string) storage.Client {
	t.Helper()

	hash, err := security.HashClientSecret(secret, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashClientSecret() error = %v", err)
	}
	return storage.Client{
		ClientID:         clientID,
		ClientSecretHash: hash,
		ClientName:       "Sample Extension App",
		RedirectURIs:     redirectURIs,
		CreatedAt:        time.Now(),
	}
}

// HTTPRequest builds a request for handler tests.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// NewHTTPRequest starts a request builder.
func NewHTTPRequest(method, url string) *HTTPRequest {
	return &HTTPRequest{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
	}
}

// WithHeader sets a request header.
func (r *HTTPRequest) WithHeader(key, value string) *HTTPRequest {
	r.Headers[key] = value
	return r
}

// WithBody sets the request body.
func (r *HTTPRequest) WithBody(body string) *HTTPRequest {
	r.Body = body
	return r
}

// WithForm sets a form-encoded body and its content type.
func (r *HTTPRequest) WithForm(body string) *HTTPRequest {
	r.Headers["Content-Type"] = "application/x-www-form-urlencoded"
	r.Body = body
	return r
}

// WithJSON sets a JSON body and its content type.
func (r *HTTPRequest) WithJSON(body string) *HTTPRequest {
	r.Headers["Content-Type"] = "application/json"
	r.Body = body
	return r
}

// Do serves the request with handler and returns the recorded response.
func (r *HTTPRequest) Do(handler http.Handler) *httptest.ResponseRecorder {
	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.URL, body)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}
