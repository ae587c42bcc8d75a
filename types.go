package oauth

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// TokenResponse is the body of a successful token request (RFC 6749 §5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// VerifyMobileRequest is the body of /oauth/verify-mobile.
type VerifyMobileRequest struct {
	PhoneNumber LooseString `json:"phoneNumber"`
	Region      LooseString `json:"region"`
}

// VerifyMobileResponse reports the lookup outcome.
type VerifyMobileResponse struct {
	Verified            bool   `json:"verified"`
	VerifyFailureReason string `json:"verifyFailureReason,omitempty"`
}

// HealthResponse is served by /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// LooseString decodes a JSON string, number or boolean into its string form.
// Partner payloads send regions as numbers as often as strings.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(data []byte) error {
	v, err := scalarToString(data)
	if err != nil {
		return err
	}
	*s = LooseString(v)
	return nil
}

// scalarToString returns the string form of a JSON scalar. null becomes "";
// objects and arrays are rejected.
func scalarToString(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		return "", fmt.Errorf("expected a scalar value, got %s", data[:1])
	default:
		// Numbers and booleans keep their literal form.
		return string(data), nil
	}
}
