package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/relayworks/mailwatch/internal/instrumentation"
	"github.com/relayworks/mailwatch/internal/logging"
	"github.com/relayworks/mailwatch/internal/store"
	"github.com/relayworks/mailwatch/internal/watch"
)

// accountRequest is the body shared by the account-scoped endpoints.
type accountRequest struct {
	AccountID string `json:"accountId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeAccountRequest parses and validates the request body.
func decodeAccountRequest(w http.ResponseWriter, r *http.Request) (accountRequest, bool) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "accountId is required")
		return req, false
	}
	return req, true
}

// handleRefresh rotates the access token for an account using its stored
// refresh token and persists the new credentials.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeAccountRequest(w, r)
	if !ok {
		return
	}

	account, err := s.store.GetByID(ctx, req.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown account")
		return
	}
	if err != nil {
		s.logger.Error("failed to load account for refresh", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	if !account.Credentials.HasRefreshToken() {
		writeError(w, http.StatusBadRequest, "offline access not granted")
		return
	}

	token, err := s.refreshedTokenSource(ctx, account.Credentials.RefreshToken).Token()
	if err != nil {
		s.logger.Error("token refresh failed",
			logging.Account(account.ID),
			logging.Err(err))
		s.metrics.RecordTokenRefresh(ctx, instrumentation.StatusError)
		writeError(w, http.StatusBadGateway, "provider refused the refresh")
		return
	}

	creds := store.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: account.Credentials.RefreshToken,
		Expiry:       token.Expiry,
	}
	if token.RefreshToken != "" {
		creds.RefreshToken = token.RefreshToken
	}

	// Last writer wins on concurrent refreshes of the same account; both
	// outcomes are valid provider-issued credentials.
	if err := s.store.UpdateCredentials(ctx, account.ID, creds); err != nil {
		s.logger.Error("failed to persist refreshed credentials", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	s.metrics.RecordTokenRefresh(ctx, instrumentation.StatusSuccess)
	s.audit.LogAccountEvent(instrumentation.NewAccountEvent(instrumentation.ActionTokenRefreshed).
		WithAccount(account.ID, account.MailboxAddress).
		CompleteSuccess())

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"expiry":  token.Expiry.UTC().Format(time.RFC3339),
	})
}

// handleRevoke invalidates the grant at the provider (best effort), stops
// the watch and clears the stored subscription.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeAccountRequest(w, r)
	if !ok {
		return
	}

	account, err := s.store.GetByID(ctx, req.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown account")
		return
	}
	if err != nil {
		s.logger.Error("failed to load account for revocation", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	// Revocation at the provider is best effort: the caller wants the
	// grant gone, and a failed revocation call must not keep our side of
	// the state alive.
	revokeToken := account.Credentials.RefreshToken
	if revokeToken == "" {
		revokeToken = account.Credentials.AccessToken
	}
	if err := s.oauth.Revoke(ctx, revokeToken); err != nil {
		s.logger.Warn("provider revocation failed",
			logging.Account(account.ID),
			logging.Err(err))
	}

	if account.Subscription != nil && s.watches != nil {
		if err := s.watches.Teardown(ctx, account.ID); err != nil {
			s.logger.Warn("watch teardown during revocation failed",
				logging.Account(account.ID),
				logging.Err(err))
			// The provider-side watch dies with the grant anyway; make
			// sure our record agrees.
			if err := s.store.UpdateSubscription(ctx, account.ID, nil); err != nil {
				s.logger.Error("failed to clear subscription", logging.Err(err))
			}
		}
	}

	s.audit.LogAccountEvent(instrumentation.NewAccountEvent(instrumentation.ActionAccessRevoked).
		WithAccount(account.ID, account.MailboxAddress).
		CompleteSuccess())

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleSubscriptionSetup establishes the mailbox watch for an account and
// returns the resulting subscription.
func (s *Server) handleSubscriptionSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := decodeAccountRequest(w, r)
	if !ok {
		return
	}

	sub, err := s.watches.Establish(ctx, req.AccountID)
	if errors.Is(err, watch.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "unknown account")
		return
	}
	var pErr *watch.ProviderError
	if errors.As(err, &pErr) {
		s.logger.Error("watch setup failed", logging.Account(req.AccountID), logging.Err(err))
		writeError(w, http.StatusBadGateway, "provider rejected the watch")
		return
	}
	if err != nil {
		s.logger.Error("watch setup failed", logging.Account(req.AccountID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "watch setup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"historyId": sub.HistoryID,
		"channel":   sub.Channel,
		"expiry":    sub.Expiry.UTC().Format(time.RFC3339),
	})
}
