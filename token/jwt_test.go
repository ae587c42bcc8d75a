package token

import (
	"encoding/base64"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-jwt-secret-0123456789abcdef")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestIssuer(t *testing.T, opts ...Option) *Issuer {
	t.Helper()
	iss, err := NewIssuer(testSecret, "", opts...)
	require.NoError(t, err)
	return iss
}

func TestNewIssuer(t *testing.T) {
	_, err := NewIssuer(nil, "")
	assert.Error(t, err, "empty secret must be rejected")

	iss, err := NewIssuer(testSecret, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultIssuer, iss.issuer)
	assert.Equal(t, DefaultTTL, iss.TTL())

	iss, err = NewIssuer(testSecret, "https://issuer.example", WithTTL(5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.example", iss.issuer)
	assert.Equal(t, 5*time.Minute, iss.TTL())
}

func TestIssue_ClaimsRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	iss := newTestIssuer(t, WithClock(fixedClock(now)))

	tok, err := iss.Issue("client-a", "")
	require.NoError(t, err)

	assert.Equal(t, int64(3600), tok.ExpiresIn())
	assert.Equal(t, DefaultScope, tok.Scope)
	assert.Equal(t, 3, len(strings.Split(tok.Value, ".")))

	claims, err := iss.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "client-a", claims.ClientID)
	assert.Equal(t, "signature", claims.Scope)
	assert.Equal(t, DefaultIssuer, claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"client-a"}, claims.Audience)
	assert.Equal(t, now.Truncate(time.Second).Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Truncate(time.Second).Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestIssue_CustomScope(t *testing.T) {
	iss := newTestIssuer(t)

	tok, err := iss.Issue("client-a", "signature extended")
	require.NoError(t, err)

	claims, err := iss.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "signature extended", claims.Scope)
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	iss := newTestIssuer(t)

	a, err := iss.Issue("client-a", "")
	require.NoError(t, err)
	b, err := iss.Issue("client-a", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.Value, b.Value)
}

func TestIssue_EmptyClient(t *testing.T) {
	_, err := newTestIssuer(t).Issue("", "")
	assert.Error(t, err)
}

func TestVerify_Failures(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, WithClock(fixedClock(now)))

	valid, err := iss.Issue("client-a", "")
	require.NoError(t, err)

	otherKey, err := NewIssuer([]byte("another-secret"), "", WithClock(fixedClock(now)))
	require.NoError(t, err)
	foreign, err := otherKey.Issue("client-a", "")
	require.NoError(t, err)

	otherIssuer, err := NewIssuer(testSecret, "https://evil.example", WithClock(fixedClock(now)))
	require.NoError(t, err)
	wrongIss, err := otherIssuer.Issue("client-a", "")
	require.NoError(t, err)

	// Swap the payload for one naming another client while keeping the signature.
	parts := strings.Split(valid.Value, ".")
	forgedPayload := base64.RawURLEncoding.EncodeToString([]byte(
		`{"clientId":"client-b","scope":"signature","iss":"` + DefaultIssuer + `","aud":["client-b"],"exp":` +
			strconv.FormatInt(now.Add(time.Hour).Unix(), 10) + `}`))
	tampered := parts[0] + "." + forgedPayload + "." + parts[2]

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		ClientID: "client-a",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Audience:  jwt.ClaimStrings{"client-a"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	audMismatch, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ClientID: "client-a",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Audience:  jwt.ClaimStrings{"client-b"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ClientID: "client-a",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   DefaultIssuer,
			Audience: jwt.ClaimStrings{"client-a"},
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "garbage", raw: "not.a.jwt"},
		{name: "signed with another key", raw: foreign.Value},
		{name: "tampered payload", raw: tampered},
		{name: "wrong issuer", raw: wrongIss.Value},
		{name: "alg none", raw: noneToken},
		{name: "audience mismatch", raw: audMismatch},
		{name: "missing exp", raw: noExp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := iss.Verify(tt.raw)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestVerify_Expired(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := issuedAt
	iss := newTestIssuer(t, WithClock(func() time.Time { return current }))

	tok, err := iss.Issue("client-a", "")
	require.NoError(t, err)

	current = issuedAt.Add(59 * time.Minute)
	_, err = iss.Verify(tok.Value)
	require.NoError(t, err)

	current = issuedAt.Add(time.Hour + time.Second)
	_, err = iss.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
