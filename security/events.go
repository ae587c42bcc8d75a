package security

// Audit event types.
const (
	EventAuthorizationCodeIssued = "authorization_code_issued"
	EventAuthorizationRejected   = "authorization_rejected"

	EventTokenIssued = "token_issued"

	// EventAuthFailure covers failed client authentication at the token endpoint.
	EventAuthFailure = "auth_failure"

	// EventInvalidGrant is logged for unknown, expired, replayed or mismatched codes.
	EventInvalidGrant = "invalid_grant"

	EventPKCEValidationFailed = "pkce_validation_failed"

	EventTokenValidationFailed = "token_validation_failed" //nolint:gosec // event name, not a credential

	EventMobileVerified = "mobile_verification"

	EventRateLimitExceeded = "rate_limit_exceeded"
)
