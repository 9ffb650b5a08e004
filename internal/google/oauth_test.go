package google

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthCodeURL(t *testing.T) {
	c := NewClient("client-id", "client-secret", "https://example.com/auth/callback", 10*time.Second)

	raw := c.AuthCodeURL("state-token-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "state-token-123", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://example.com/auth/callback", q.Get("redirect_uri"))

	// Offline access plus forced consent guarantees a refresh token even
	// for a returning user.
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
}

func TestAuthCodeURLScopes(t *testing.T) {
	c := NewClient("id", "secret", "https://example.com/cb", time.Second)

	u, err := url.Parse(c.AuthCodeURL("s"))
	require.NoError(t, err)

	scope := u.Query().Get("scope")
	for _, want := range []string{
		"gmail.readonly",
		"gmail.send",
		"gmail.compose",
		"gmail.modify",
		"userinfo.email",
		"userinfo.profile",
	} {
		assert.Contains(t, scope, want)
	}
}
