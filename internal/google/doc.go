// Package google talks to Google's OAuth 2.0 and profile endpoints: consent
// URLs, code exchange, userinfo lookup, refresh token sources and token
// revocation.
package google
