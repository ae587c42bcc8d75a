package server

import (
	"errors"
	"fmt"
)

// OAuth 2.0 error codes (RFC 6749 §4.1.2.1, §5.2, RFC 6750 §3.1).
// The root package maps these to HTTP status codes.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeServerError          = "server_error"
)

// Error is a protocol error returned to the client as
// {"error": Code, "error_description": Description}. Err holds the internal
// cause, which is logged but never sent.
type Error struct {
	Code        string
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError returns an Error without an internal cause.
func NewError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

func wrapError(code, description string, err error) *Error {
	return &Error{Code: code, Description: description, Err: err}
}

// ErrorCode returns the OAuth error code carried by err, or
// ErrorCodeServerError when err is not an *Error.
func ErrorCode(err error) string {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr.Code
	}
	return ErrorCodeServerError
}

// invalidGrant is the single description used for every code failure so
// responses never reveal which check failed.
func invalidGrant(reason string) *Error {
	return &Error{
		Code:        ErrorCodeInvalidGrant,
		Description: "The authorization code is invalid, expired, or was issued to another client",
		Err:         errors.New(reason),
	}
}
