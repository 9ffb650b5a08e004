package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/relayworks/mailwatch/internal/instrumentation"
	"github.com/relayworks/mailwatch/internal/logging"
	"github.com/relayworks/mailwatch/internal/notify"
	"github.com/relayworks/mailwatch/internal/store"
)

// sessionCookieName holds the HMAC binding the browser session to the
// handshake state token.
const sessionCookieName = "mailwatch_session"

var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head><title>Registration complete</title></head>
<body>
<h1>Mailbox connected</h1>
<p>Access to <strong>{{.Mailbox}}</strong> was granted at {{.Timestamp}}.</p>
<p>You can close this window.</p>
</body>
</html>`))

var failurePage = template.Must(template.New("failure").Parse(`<!DOCTYPE html>
<html>
<head><title>Registration failed</title></head>
<body>
<h1>Registration failed</h1>
<p>{{.Reason}}</p>
<p>Please restart the registration from the beginning.</p>
</body>
</html>`))

// handleAuthStart mints the anti-forgery state, parks the registrant
// metadata server-side, binds the browser to the state via a signed cookie
// and redirects to the provider's consent screen.
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := q.Get("email")
	if email == "" {
		http.Error(w, "missing email parameter", http.StatusBadRequest)
		return
	}

	state := uuid.NewString()
	s.pending.Put(state, &pendingRegistration{
		Name:    q.Get("name"),
		Email:   email,
		Company: q.Get("company"),
	})

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.signState(state),
		Path:     "/auth",
		MaxAge:   int(DefaultPendingTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	s.logger.Info("handshake started", logging.UserHash(email), logging.Domain(email))
	http.Redirect(w, r, s.oauth.AuthCodeURL(state), http.StatusFound)
}

// handleAuthCallback finishes the handshake. The state must match a live
// pending registration and the signed cookie; any mismatch is a terminal
// CSRF failure with no account side effects.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		s.logger.Warn("handshake denied at consent screen", slog.String("provider_error", errCode))
		s.metrics.RecordHandshake(ctx, instrumentation.HandshakeDenied)
		s.renderFailure(w, "Access was denied at the consent screen.")
		return
	}

	state := q.Get("state")
	reg, ok := s.pending.Take(state)
	if !ok || !s.verifyStateCookie(r, state) {
		s.logger.Warn("handshake state mismatch, rejecting callback")
		s.metrics.RecordHandshake(ctx, instrumentation.HandshakeFailure)
		s.renderFailure(w, "The sign-in link is invalid or has expired.")
		return
	}

	token, err := s.oauth.Exchange(ctx, q.Get("code"))
	if err != nil {
		s.logger.Error("code exchange failed", logging.Err(err))
		s.metrics.RecordHandshake(ctx, instrumentation.HandshakeFailure)
		s.renderFailure(w, "The authorization code could not be exchanged.")
		return
	}

	// The provider's profile is the only trusted source for the mailbox
	// address; the registrant-typed address is metadata at best.
	mailbox, err := s.oauth.Profile(ctx, token)
	if err != nil {
		s.logger.Error("profile lookup failed", logging.Err(err))
		s.metrics.RecordHandshake(ctx, instrumentation.HandshakeFailure)
		s.renderFailure(w, "The mailbox address could not be verified.")
		return
	}

	account := &store.Account{
		ID:             uuid.NewString(),
		OwnerName:      reg.Name,
		OwnerEmail:     reg.Email,
		OwnerOrg:       reg.Company,
		MailboxAddress: mailbox,
		Credentials: store.Credentials{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			Expiry:       token.Expiry,
		},
		RegisteredAt: time.Now().UTC(),
	}

	event := instrumentation.NewAccountEvent(instrumentation.ActionRegistered).
		WithAccount(account.ID, mailbox).
		WithSpanContext(ctx)
	if err := s.store.Upsert(ctx, account); err != nil {
		s.logger.Error("failed to persist account", logging.Err(err))
		s.metrics.RecordHandshake(ctx, instrumentation.HandshakeFailure)
		s.audit.LogAccountEvent(event.CompleteWithError(err))
		s.renderFailure(w, "The registration could not be saved.")
		return
	}
	s.audit.LogAccountEvent(event.CompleteSuccess())
	s.metrics.RecordHandshake(ctx, instrumentation.HandshakeSuccess)

	s.logger.Info("account registered",
		logging.Account(account.ID),
		logging.UserHash(mailbox),
		logging.Domain(mailbox))

	// The response is already decided; watch setup and the registration
	// webhook run in the background with their own bounded context and
	// only ever log their outcome.
	go s.afterRegistration(account)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = successPage.Execute(w, map[string]string{
		"Mailbox":   mailbox,
		"Timestamp": account.RegisteredAt.Format(time.RFC3339),
	})
}

// afterRegistration runs the post-handshake side effects.
func (s *Server) afterRegistration(account *store.Account) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sideEffectTimeout)
	defer cancel()

	if s.watches != nil {
		if _, err := s.watches.Establish(ctx, account.ID); err != nil {
			s.logger.Error("watch setup after registration failed",
				logging.Account(account.ID),
				logging.Err(err))
		}
	}

	if s.notifier != nil {
		outcome := s.notifier.Notify(ctx, notify.EventClientRegistered, notify.RegistrationData{
			AccountID:      account.ID,
			Name:           account.OwnerName,
			Email:          account.OwnerEmail,
			Company:        account.OwnerOrg,
			MailboxAddress: account.MailboxAddress,
			RegisteredAt:   account.RegisteredAt,
			Tokens: notify.TokenData{
				AccessToken:  account.Credentials.AccessToken,
				RefreshToken: account.Credentials.RefreshToken,
				Expiry:       account.Credentials.Expiry,
			},
		})
		s.metrics.RecordWebhookDelivery(ctx, string(notify.EventClientRegistered), outcome.Status)
	}
}

// signState returns the session cookie value binding this browser to the
// given state token.
func (s *Server) signState(state string) string {
	mac := hmac.New(sha256.New, s.sessionSecret)
	mac.Write([]byte(state))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyStateCookie checks that the callback arrives from the browser that
// started the handshake.
func (s *Server) verifyStateCookie(r *http.Request, state string) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(cookie.Value), []byte(s.signState(state)))
}

func (s *Server) renderFailure(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_ = failurePage.Execute(w, map[string]string{"Reason": reason})
}

// refreshedTokenSource builds a token source that must go to the provider:
// only the refresh token is supplied, so the first Token() call performs a
// real refresh instead of returning a cached access token.
func (s *Server) refreshedTokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	return s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}
