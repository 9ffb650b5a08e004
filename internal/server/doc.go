// Package server exposes the HTTP surface: the OAuth handshake
// (/auth/start, /auth/callback), token management (/auth/refresh,
// /auth/revoke), subscription setup, the Pub/Sub push endpoint and health.
//
// The callback is the trust boundary of the whole service: the state token
// must match a live pending registration and the signed session cookie, and
// the mailbox address is always taken from the provider's profile endpoint,
// never from the registrant.
package server
