package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// revokeEndpoint is Google's OAuth 2.0 token revocation endpoint.
const revokeEndpoint = "https://oauth2.googleapis.com/revoke"

// Client wraps the OAuth 2.0 configuration for the identity provider. It
// holds no per-account state; token sources are built per call with the
// credentials passed in explicitly.
type Client struct {
	conf    *oauth2.Config
	timeout time.Duration
}

// NewClient builds a Client from the application's OAuth credentials.
func NewClient(clientID, clientSecret, redirectURL string, timeout time.Duration) *Client {
	return &Client{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     googleoauth.Endpoint,
		},
		timeout: timeout,
	}
}

// AuthCodeURL returns the consent URL for the given anti-forgery state.
// Offline access is requested explicitly and the consent prompt is forced,
// so a refresh token is reissued even for a returning user.
func (c *Client) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for a token set.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: failed to exchange auth code: %w", err)
	}
	return token, nil
}

// Profile fetches the authorized mailbox address from the provider's
// userinfo endpoint. The callback uses this value, never the address the
// registrant typed in.
func (c *Client) Profile(ctx context.Context, token *oauth2.Token) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	svc, err := goauth2.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return "", fmt.Errorf("google: failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google: failed to fetch profile: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("google: profile endpoint returned no email address")
	}
	return info.Email, nil
}

// TokenSource returns a refreshing token source for the given token set.
// The source is built per call; nothing shared is mutated.
func (c *Client) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	return c.conf.TokenSource(ctx, token)
}

// Revoke invalidates a token (access or refresh) at the provider.
func (c *Client) Revoke(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeEndpoint,
		strings.NewReader(url.Values{"token": {token}}.Encode()))
	if err != nil {
		return fmt.Errorf("google: failed to build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("google: revocation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google: revocation returned status %d", resp.StatusCode)
	}
	return nil
}
