package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments of the server.
type Metrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	AuthorizationCodesIssued metric.Int64Counter
	TokensIssued             metric.Int64Counter
	TokenValidations         metric.Int64Counter
	MobileVerifications      metric.Int64Counter

	ClientAuthFailures      metric.Int64Counter
	InvalidGrants           metric.Int64Counter
	PKCEValidationFailed    metric.Int64Counter
	RateLimitExceeded       metric.Int64Counter
	RateLimitActiveLimiters metric.Int64ObservableGauge

	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageCodesPending      metric.Int64ObservableGauge
}

type counterSpec struct {
	dst   *metric.Int64Counter
	scope string
	name  string
	desc  string
	unit  string
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	counters := []counterSpec{
		{&m.HTTPRequestsTotal, "http", "oauth.http.requests", "Total number of HTTP requests", "{request}"},
		{&m.AuthorizationCodesIssued, "server", "oauth.authorization_codes.issued", "Number of authorization codes issued", "{code}"},
		{&m.TokensIssued, "server", "oauth.tokens.issued", "Number of access tokens issued", "{token}"},
		{&m.TokenValidations, "server", "oauth.token.validations", "Number of bearer token validations", "{validation}"},
		{&m.MobileVerifications, "server", "oauth.mobile.verifications", "Number of phone number lookups", "{lookup}"},
		{&m.ClientAuthFailures, "security", "oauth.client_auth.failures", "Number of failed client authentications", "{failure}"},
		{&m.InvalidGrants, "security", "oauth.grant.invalid", "Number of rejected authorization grants", "{failure}"},
		{&m.PKCEValidationFailed, "security", "oauth.pkce.validation_failed", "Number of PKCE validation failures", "{failure}"},
		{&m.RateLimitExceeded, "security", "oauth.rate_limit.exceeded", "Number of rate limit violations", "{violation}"},
		{&m.StorageOperationTotal, "storage", "storage.operations", "Total number of storage operations", "{operation}"},
	}
	for _, c := range counters {
		counter, err := inst.Meter(c.scope).Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.HTTPRequestDuration, err = inst.Meter("http").Float64Histogram(
		"oauth.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.StorageOperationDuration, err = inst.Meter("storage").Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StorageCodesPending, err = inst.Meter("storage").Int64ObservableGauge(
		"storage.codes.pending",
		metric.WithDescription("Authorization codes waiting to be redeemed"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.codes.pending gauge: %w", err)
	}

	m.RateLimitActiveLimiters, err = inst.Meter("security").Int64ObservableGauge(
		"oauth.rate_limit.active_limiters",
		metric.WithDescription("Identifiers currently tracked by the rate limiter"),
		metric.WithUnit("{limiter}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.active_limiters gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordAuthorizationCodeIssued records a code handed out by /oauth/authorize.
func (m *Metrics) RecordAuthorizationCodeIssued(ctx context.Context, clientID, pkceMethod string) {
	m.AuthorizationCodesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("pkce_method", pkceMethod),
	))
}

// RecordTokenIssued records an access token grant.
func (m *Metrics) RecordTokenIssued(ctx context.Context, clientID, grantType string) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("grant_type", grantType),
	))
}

// RecordTokenValidation records a bearer token check.
func (m *Metrics) RecordTokenValidation(ctx context.Context, valid bool) {
	m.TokenValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", valid),
	))
}

// RecordMobileVerification records a phone lookup outcome. reason is empty
// for verified numbers.
func (m *Metrics) RecordMobileVerification(ctx context.Context, verified bool, reason string) {
	m.MobileVerifications.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("verified", verified),
		attribute.String("reason", reason),
	))
}

// RecordClientAuthFailure records a rejected client authentication.
func (m *Metrics) RecordClientAuthFailure(ctx context.Context, reason string) {
	m.ClientAuthFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordInvalidGrant records a rejected authorization code.
func (m *Metrics) RecordInvalidGrant(ctx context.Context, reason string) {
	m.InvalidGrants.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordPKCEValidationFailed records a failed code_verifier check.
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, method string) {
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordRateLimitExceeded records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordStorageOperation records a code store call against backend.
func (m *Metrics) RecordStorageOperation(ctx context.Context, backend, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	))
}
