package vault

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestRoundTrip(t *testing.T) {
	v, err := New(testKey, nil)
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "access token", plaintext: "ya29.a0AfH6SMB-example-token"},
		{name: "empty string", plaintext: ""},
		{name: "unicode", plaintext: "pässwörd-日本語"},
		{name: "long input", plaintext: strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := v.EncryptString(tt.plaintext)
			require.NoError(t, err)
			if tt.plaintext != "" {
				assert.NotEqual(t, tt.plaintext, ct)
			}

			pt, err := v.DecryptString(ct)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, pt)
		})
	}
}

func TestNonceUniqueness(t *testing.T) {
	v, err := New(testKey, nil)
	require.NoError(t, err)

	a, err := v.EncryptString("same input")
	require.NoError(t, err)
	b, err := v.EncryptString("same input")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptWithWrongKey(t *testing.T) {
	v1, err := New(testKey, nil)
	require.NoError(t, err)
	v2, err := New("fedcba9876543210fedcba9876543210", nil)
	require.NoError(t, err)

	ct, err := v1.EncryptString("secret refresh token")
	require.NoError(t, err)

	_, err = v2.DecryptString(ct)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestDecryptMalformedInput(t *testing.T) {
	v, err := New(testKey, nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{name: "not base64", input: "!!!not-base64!!!"},
		{name: "too short", input: "YWJj"},
		{name: "valid base64 garbage", input: "YWJjZGVmZ2hpamtsbW5vcHFyc3R1dnd4eXo="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.DecryptString(tt.input)
			assert.ErrorIs(t, err, ErrDecryption)
		})
	}
}

func TestInvalidKeyLength(t *testing.T) {
	_, err := New("short", nil)
	assert.Error(t, err)
}

func TestPassthroughMode(t *testing.T) {
	v, err := New("", nil)
	require.NoError(t, err)
	assert.True(t, v.Passthrough())

	ct, err := v.EncryptString("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", ct)

	pt, err := v.DecryptString("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", pt)
}
