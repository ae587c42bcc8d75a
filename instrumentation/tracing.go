package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Codes, tokens and secrets are never attached; only
// metadata about them is.
const (
	AttrClientID         = "oauth.client_id"
	AttrScope            = "oauth.scope"
	AttrGrantType        = "oauth.grant_type"
	AttrResponseType     = "oauth.response_type"
	AttrPKCEMethod       = "oauth.pkce.method"
	AttrAccessType       = "oauth.access_type"
	AttrRedirectBound    = "oauth.redirect_uri.bound"
	AttrError            = "oauth.error"
	AttrErrorDescription = "oauth.error_description"

	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	AttrVerificationRegion = "verification.region"
	AttrVerified           = "verification.verified"

	AttrClientIP  = "security.client_ip"
	AttrRequestID = "http.request_id"

	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
)

// RecordError records err on span and marks it failed. Nil-safe.
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks span as successful. Nil-safe.
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError marks span failed with message. Nil-safe.
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attrs on span. Nil-safe.
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddOAuthErrorAttributes attaches an OAuth error code and description.
func AddOAuthErrorAttributes(span trace.Span, code, description string) {
	SetSpanAttributes(span,
		attribute.String(AttrError, code),
		attribute.String(AttrErrorDescription, description),
	)
	SetSpanError(span, code)
}

// AddStorageAttributes describes a code store call.
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddHTTPAttributes describes a served request.
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}
