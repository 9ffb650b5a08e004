package logging

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
	}{
		{name: "regular address", email: "alice@example.com"},
		{name: "plus addressing", email: "bob+tag@example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnonymizeEmail(tt.email)
			assert.NotContains(t, got, tt.email)
			assert.Contains(t, got, "user:")
			// Stable for correlation across log lines.
			assert.Equal(t, got, AnonymizeEmail(tt.email))
		})
	}
}

func TestAnonymizeEmailEmpty(t *testing.T) {
	assert.Equal(t, "", AnonymizeEmail(""))
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))

	got := SanitizeToken("ya29.secret-token-value")
	assert.NotContains(t, got, "secret")
	assert.Equal(t, "[token:23 chars]", got)
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "example.com", ExtractDomain("alice@example.com"))
	assert.Equal(t, "", ExtractDomain("not-an-email"))
	assert.Equal(t, "", ExtractDomain(""))
}

func TestErrNil(t *testing.T) {
	attr := Err(nil)
	// Empty group attrs are omitted by slog handlers.
	assert.Equal(t, slog.KindGroup, attr.Value.Kind())
	assert.Empty(t, attr.Key)
}

func TestErrNonNil(t *testing.T) {
	attr := Err(errors.New("boom"))
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, "boom", attr.Value.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("anything-else"))
}
