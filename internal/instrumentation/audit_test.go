package instrumentation

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestAccountEvent_Complete(t *testing.T) {
	e := NewAccountEvent(ActionWatchRenewed).
		WithAccount("acc-1", "user@example.com")

	time.Sleep(time.Millisecond)
	e.CompleteSuccess()

	if !e.Success {
		t.Error("expected success")
	}
	if e.Duration <= 0 {
		t.Error("expected positive duration")
	}
	if e.Status() != StatusSuccess {
		t.Errorf("expected status success, got %q", e.Status())
	}
}

func TestAccountEvent_CompleteWithError(t *testing.T) {
	e := NewAccountEvent(ActionWatchEstablished).
		WithAccount("acc-2", "user@example.com").
		CompleteWithError(errors.New("topic not found"))

	if e.Success {
		t.Error("expected failure")
	}
	if e.Error != "topic not found" {
		t.Errorf("expected error message preserved, got %q", e.Error)
	}
	if e.Status() != StatusError {
		t.Errorf("expected status error, got %q", e.Status())
	}
}

func TestAccountEvent_LogAttrsAnonymized(t *testing.T) {
	e := NewAccountEvent(ActionRegistered).
		WithAccount("acc-3", "secret@example.com").
		CompleteSuccess()

	for _, attr := range e.LogAttrs() {
		if strings.Contains(attr.Value.String(), "secret@example.com") {
			t.Errorf("anonymized attrs leaked the mailbox address: %v", attr)
		}
	}

	// The audit variant keeps the full address for compliance streams.
	found := false
	for _, attr := range e.LogAuditAttrs() {
		if attr.Value.String() == "secret@example.com" {
			found = true
		}
	}
	if !found {
		t.Error("expected audit attrs to include the full mailbox address")
	}
}

func TestAuditLogger_PIIConfiguration(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, IncludePII: false})
	al.LogAccountEvent(NewAccountEvent(ActionTokenRefreshed).
		WithAccount("acc-4", "person@example.com").
		CompleteSuccess())

	if strings.Contains(buf.String(), "person@example.com") {
		t.Error("expected mailbox address to be anonymized without IncludePII")
	}
	if !strings.Contains(buf.String(), "account_event") {
		t.Error("expected account_event log line")
	}

	buf.Reset()
	al.SetIncludePII(true)
	al.LogAccountEvent(NewAccountEvent(ActionAccessRevoked).
		WithAccount("acc-4", "person@example.com").
		CompleteSuccess())

	if !strings.Contains(buf.String(), "person@example.com") {
		t.Error("expected full mailbox address with IncludePII enabled")
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: false})
	al.LogAccountEvent(NewAccountEvent(ActionRegistered).CompleteSuccess())

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got %q", buf.String())
	}
}

func TestAuditLogger_FailureLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	al := NewAuditLogger(logger)
	al.LogAccountEvent(NewAccountEvent(ActionWatchRenewed).
		WithAccount("acc-5", "x@example.com").
		CompleteWithError(errors.New("grant revoked")))

	if !strings.Contains(buf.String(), "level=WARN") {
		t.Error("expected failed events at warn level")
	}
	if !strings.Contains(buf.String(), "account_event_failed") {
		t.Error("expected account_event_failed message")
	}
}
