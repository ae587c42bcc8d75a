package security

import (
	"context"
	"log/slog"
	"time"
)

// Auditor writes one structured "security_audit" record per security event.
// Client ids are logged in clear; IP addresses only when logIPs is set.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
	logIPs  bool
	now     func() time.Time
}

// NewAuditor returns an Auditor. A disabled Auditor drops every event.
func NewAuditor(logger *slog.Logger, enabled, logIPs bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
		logIPs:  logIPs,
		now:     time.Now,
	}
}

// Event is a single audit record.
type Event struct {
	Type      string
	ClientID  string
	IPAddress string
	RequestID string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent records event. A nil Auditor is a no-op so callers can leave
// auditing unconfigured.
func (a *Auditor) LogEvent(ctx context.Context, event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = a.now()
	if event.RequestID == "" {
		event.RequestID = GetRequestID(ctx)
	}

	attrs := []any{
		"event_type", event.Type,
		"client_id", event.ClientID,
		"timestamp", event.Timestamp,
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	if a.logIPs && event.IPAddress != "" {
		attrs = append(attrs, "ip_address", event.IPAddress)
	}
	if len(event.Details) > 0 {
		attrs = append(attrs, "details", event.Details)
	}

	a.logger.InfoContext(ctx, "security_audit", attrs...)
}

// LogCodeIssued records a successful authorization request.
func (a *Auditor) LogCodeIssued(ctx context.Context, clientID, ipAddress, scope string, pkce bool) {
	a.LogEvent(ctx, Event{
		Type:      EventAuthorizationCodeIssued,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"scope": scope,
			"pkce":  pkce,
		},
	})
}

// LogTokenIssued records an access token grant.
func (a *Auditor) LogTokenIssued(ctx context.Context, clientID, ipAddress, grantType, scope string) {
	a.LogEvent(ctx, Event{
		Type:      EventTokenIssued,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"grant_type": grantType,
			"scope":      scope,
		},
	})
}

// LogAuthFailure records a failure of type eventType with a short reason.
func (a *Auditor) LogAuthFailure(ctx context.Context, eventType, clientID, ipAddress, reason string) {
	a.LogEvent(ctx, Event{
		Type:      eventType,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded records a rejected request.
func (a *Auditor) LogRateLimitExceeded(ctx context.Context, ipAddress, endpoint string) {
	a.LogEvent(ctx, Event{
		Type:      EventRateLimitExceeded,
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}
