package oauth

import (
	"net/http"

	"github.com/droneregistry/extension-oauth/server"
)

// OAuth error codes as constants
const (
	ErrorCodeInvalidRequest       = server.ErrorCodeInvalidRequest
	ErrorCodeUnauthorizedClient   = server.ErrorCodeUnauthorizedClient
	ErrorCodeInvalidClient        = server.ErrorCodeInvalidClient
	ErrorCodeInvalidGrant         = server.ErrorCodeInvalidGrant
	ErrorCodeUnsupportedGrantType = server.ErrorCodeUnsupportedGrantType
	ErrorCodeInvalidToken         = server.ErrorCodeInvalidToken
	ErrorCodeServerError          = server.ErrorCodeServerError
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrorCodeNotFound             = "not_found"
)

// Error values of the verification endpoint, which predates the OAuth
// error vocabulary and reports bearer failures in the error field itself.
const (
	ErrorMissingAuthorization = "Missing or invalid authorization header"
	ErrorInvalidBearerToken   = "Invalid token"
)

// Descriptions that never carry internal detail.
const (
	descInternalError    = "Internal server error"
	descNotFound         = "Endpoint not found"
	descMethodNotAllowed = "Method not allowed"
	descRateLimited      = "Rate limit exceeded. Please try again later."
)

// StatusForCode returns the HTTP status of an OAuth error code.
// Unknown codes map to 500.
func StatusForCode(code string) int {
	switch code {
	case ErrorCodeInvalidRequest, ErrorCodeInvalidGrant, ErrorCodeUnsupportedGrantType:
		return http.StatusBadRequest
	case ErrorCodeUnauthorizedClient, ErrorCodeInvalidClient, ErrorCodeInvalidToken:
		return http.StatusUnauthorized
	case ErrorCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
