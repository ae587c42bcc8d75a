package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/droneregistry/extension-oauth/security"
)

// MaxCodePayloadSize bounds the serialized size of a stored authorization
// code. Requests carrying oversized state or scope values are rejected
// before they reach an external store.
const MaxCodePayloadSize = 16 * 1024

// authorizationCodeJSON is the wire form of AuthorizationCode in external stores.
type authorizationCodeJSON struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri,omitempty"`
	RedirectURIBound    bool      `json:"redirect_uri_bound,omitempty"`
	State               string    `json:"state,omitempty"`
	Scope               string    `json:"scope,omitempty"`
	AccessType          string    `json:"access_type,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// CodeCodec serializes authorization codes for external stores, optionally
// encrypting the payload at rest.
type CodeCodec struct {
	encryptor *security.Encryptor
}

// NewCodeCodec returns a codec. A nil or disabled encryptor stores plain JSON.
func NewCodeCodec(encryptor *security.Encryptor) *CodeCodec {
	return &CodeCodec{encryptor: encryptor}
}

// Encrypted reports whether payloads are encrypted at rest.
func (c *CodeCodec) Encrypted() bool {
	return c.encryptor != nil && c.encryptor.IsEnabled()
}

// Marshal encodes code into its stored representation.
func (c *CodeCodec) Marshal(code *AuthorizationCode) (string, error) {
	data, err := json.Marshal(authorizationCodeJSON{
		Code:                code.Code,
		ClientID:            code.ClientID,
		RedirectURI:         code.RedirectURI,
		RedirectURIBound:    code.RedirectURIBound,
		State:               code.State,
		Scope:               code.Scope,
		AccessType:          code.AccessType,
		CodeChallenge:       code.CodeChallenge,
		CodeChallengeMethod: code.CodeChallengeMethod,
		CreatedAt:           code.CreatedAt,
		ExpiresAt:           code.ExpiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal authorization code: %w", err)
	}
	if len(data) > MaxCodePayloadSize {
		return "", fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrInvalidAuthorizationCode, len(data), MaxCodePayloadSize)
	}

	if !c.Encrypted() {
		return string(data), nil
	}
	sealed, err := c.encryptor.Encrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt authorization code: %w", err)
	}
	return sealed, nil
}

// Unmarshal decodes a stored representation produced by Marshal.
func (c *CodeCodec) Unmarshal(stored string) (*AuthorizationCode, error) {
	data := stored
	if c.Encrypted() {
		plain, err := c.encryptor.Decrypt(stored)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt authorization code: %w", err)
		}
		data = plain
	}

	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	return &AuthorizationCode{
		Code:                j.Code,
		ClientID:            j.ClientID,
		RedirectURI:         j.RedirectURI,
		RedirectURIBound:    j.RedirectURIBound,
		State:               j.State,
		Scope:               j.Scope,
		AccessType:          j.AccessType,
		CodeChallenge:       j.CodeChallenge,
		CodeChallengeMethod: j.CodeChallengeMethod,
		CreatedAt:           j.CreatedAt,
		ExpiresAt:           j.ExpiresAt,
	}, nil
}

// TTL returns how long an external store should keep code, rounded up to a
// whole second so that a backend never evicts a code before ExpiresAt.
// A non-positive result means the code is already expired.
func TTL(code *AuthorizationCode, now time.Time) time.Duration {
	remaining := code.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return remaining.Truncate(time.Second) + time.Second
}
