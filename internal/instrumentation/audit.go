package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/relayworks/mailwatch/internal/logging"
)

// Audit action names for account lifecycle events.
const (
	ActionRegistered       = "account_registered"
	ActionTokenRefreshed   = "token_refreshed"
	ActionAccessRevoked    = "access_revoked"
	ActionWatchEstablished = "watch_established"
	ActionWatchRenewed     = "watch_renewed"
	ActionWatchStopped     = "watch_stopped"
)

// AccountEvent captures one account lifecycle action for audit logging.
//
// # Privacy Considerations
//
// The MailboxAddress field contains PII. When logging, prefer the
// anonymized identifier from UserHash() unless the audit stream is
// explicitly configured to include PII.
type AccountEvent struct {
	// Action is one of the Action* constants.
	Action string

	// Account identity
	AccountID      string
	MailboxAddress string

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// UserHash returns an anonymized identifier for the mailbox address.
func (e *AccountEvent) UserHash() string {
	return logging.AnonymizeEmail(e.MailboxAddress)
}

// Status returns "success" or "error" based on the Success field.
func (e *AccountEvent) Status() string {
	if e.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns slog attributes with the mailbox address anonymized.
func (e *AccountEvent) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		slog.String("account_id", e.AccountID),
		slog.String("user_hash", e.UserHash()),
		slog.Duration("duration", e.Duration),
		slog.Bool("success", e.Success),
	}

	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}

	return attrs
}

// LogAuditAttrs returns slog attributes including the full mailbox address.
//
// # Security Warning
//
// This method includes PII. Ensure audit logs are stored securely with
// appropriate access controls and retention.
func (e *AccountEvent) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		slog.String("account_id", e.AccountID),
		slog.String("mailbox", e.MailboxAddress),
		slog.Duration("duration", e.Duration),
		slog.Bool("success", e.Success),
	}

	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", e.SpanID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}

	return attrs
}

// NewAccountEvent creates a new AccountEvent with timing started.
// Call Complete() when the operation finishes.
func NewAccountEvent(action string) *AccountEvent {
	return &AccountEvent{
		Action:    action,
		StartTime: time.Now(),
	}
}

// WithAccount sets the account identity.
func (e *AccountEvent) WithAccount(accountID, mailbox string) *AccountEvent {
	e.AccountID = accountID
	e.MailboxAddress = mailbox
	return e
}

// WithSpanContext extracts trace context from the current span.
func (e *AccountEvent) WithSpanContext(ctx context.Context) *AccountEvent {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		e.TraceID = span.SpanContext().TraceID().String()
		e.SpanID = span.SpanContext().SpanID().String()
	}
	return e
}

// Complete marks the event as finished and calculates duration.
func (e *AccountEvent) Complete(success bool, err error) *AccountEvent {
	e.Duration = time.Since(e.StartTime)
	e.Success = success
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// CompleteWithError marks the event as failed with the given error.
func (e *AccountEvent) CompleteWithError(err error) *AccountEvent {
	return e.Complete(false, err)
}

// CompleteSuccess marks the event as successful.
func (e *AccountEvent) CompleteSuccess() *AccountEvent {
	return e.Complete(true, nil)
}

// AuditLogger provides structured audit logging for account lifecycle events.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, PII is not included; anonymized identifiers are used instead.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: false,
		enabled:    true,
	}
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

// SetIncludePII sets whether full mailbox addresses appear in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is active.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogAccountEvent logs one account lifecycle event. The PII configuration
// decides whether the full mailbox address or an anonymized identifier is
// written.
func (al *AuditLogger) LogAccountEvent(e *AccountEvent) {
	if !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = e.LogAuditAttrs()
	} else {
		attrs = e.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if e.Success {
		al.logger.Info("account_event", args...)
	} else {
		al.logger.Warn("account_event_failed", args...)
	}
}
