package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Session lifecycle audit event names.
const (
	EventConnect    = "session_connect"
	EventDisconnect = "session_disconnect"
	EventPanic      = "session_panic"
	EventTimeout    = "session_timeout"
)

// SessionEvent captures one session lifecycle transition for audit logging.
//
// # Privacy Considerations
//
// Username is the account's sign-in name and counts as PII. It is only
// logged when the audit logger is configured with IncludePII; otherwise
// the anonymized account hash and the domain are used.
type SessionEvent struct {
	Event    string
	Provider string
	Username string
	Reason   string

	Time    time.Time
	Success bool
	Error   string

	TraceID string
	SpanID  string
}

// NewSessionEvent starts an audit event for the given provider.
func NewSessionEvent(event, provider string) *SessionEvent {
	return &SessionEvent{
		Event:    event,
		Provider: provider,
		Time:     time.Now(),
		Success:  true,
	}
}

// WithUser sets the account username.
func (e *SessionEvent) WithUser(username string) *SessionEvent {
	e.Username = username
	return e
}

// WithReason sets why the event happened, e.g. "user" or "inactivity".
func (e *SessionEvent) WithReason(reason string) *SessionEvent {
	e.Reason = reason
	return e
}

// WithError marks the event as failed. A nil error leaves it successful.
func (e *SessionEvent) WithError(err error) *SessionEvent {
	if err != nil {
		e.Success = false
		e.Error = err.Error()
	}
	return e
}

// WithSpanContext copies trace identifiers from the current span.
func (e *SessionEvent) WithSpanContext(ctx context.Context) *SessionEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		e.TraceID = span.SpanContext().TraceID().String()
		e.SpanID = span.SpanContext().SpanID().String()
	}
	return e
}

// LogAttrs returns low-cardinality attributes without PII.
func (e *SessionEvent) LogAttrs(anonymize func(string) string) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("event", e.Event),
		slog.Bool("success", e.Success),
	}
	if e.Provider != "" {
		attrs = append(attrs, slog.String("provider", e.Provider))
	}
	if e.Username != "" {
		attrs = append(attrs, slog.String("user_domain", ExtractUserDomain(e.Username)))
		if anonymize != nil {
			attrs = append(attrs, slog.String("account_hash", anonymize(e.Username)))
		}
	}
	return e.appendCommon(attrs)
}

// LogAuditAttrs returns attributes including the full username.
func (e *SessionEvent) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("event", e.Event),
		slog.Bool("success", e.Success),
	}
	if e.Provider != "" {
		attrs = append(attrs, slog.String("provider", e.Provider))
	}
	if e.Username != "" {
		attrs = append(attrs, slog.String("user", e.Username))
	}
	attrs = e.appendCommon(attrs)
	if e.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", e.SpanID))
	}
	return attrs
}

func (e *SessionEvent) appendCommon(attrs []slog.Attr) []slog.Attr {
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	return attrs
}

// AuditLogger writes session lifecycle events. A nil AuditLogger discards
// everything.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
	anonymize  func(string) string
}

// NewAuditLogger creates an enabled AuditLogger that never logs PII.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// SetAnonymizer sets the function used to hash usernames when PII is off.
func (al *AuditLogger) SetAnonymizer(fn func(string) string) {
	al.anonymize = fn
}

// SetIncludePII sets whether full usernames are logged.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// Log writes the event at info level, or warn when it failed.
func (al *AuditLogger) Log(ctx context.Context, e *SessionEvent) {
	if al == nil || !al.enabled || e == nil {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = e.LogAuditAttrs()
	} else {
		attrs = e.LogAttrs(al.anonymize)
	}

	level := slog.LevelInfo
	if !e.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "session_audit", attrs...)
}
