package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/relayworks/mailwatch/internal/logging"
	"github.com/relayworks/mailwatch/internal/store"
)

// pushEnvelope is the Pub/Sub push delivery wrapper.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// pushPayload is the Gmail notification inside the envelope's data field.
type pushPayload struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// handlePush ingests Pub/Sub push deliveries. The broker redelivers on any
// non-2xx answer, so every request is acked with 204; a malformed envelope
// is logged and counted, never bounced back into the retry loop.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer w.WriteHeader(http.StatusNoContent)

	var envelope pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		s.logger.Warn("malformed push envelope", logging.Err(err))
		s.metrics.RecordPushEnvelope(ctx, "malformed")
		return
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		s.logger.Warn("push message data is not valid base64",
			logging.Err(err),
			logging.Event(envelope.Message.MessageID))
		s.metrics.RecordPushEnvelope(ctx, "malformed")
		return
	}

	var payload pushPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Warn("push message data is not a notification",
			logging.Err(err),
			logging.Event(envelope.Message.MessageID))
		s.metrics.RecordPushEnvelope(ctx, "malformed")
		return
	}

	s.metrics.RecordPushEnvelope(ctx, "decoded")

	attrs := []any{
		logging.UserHash(payload.EmailAddress),
		logging.Domain(payload.EmailAddress),
		slog.Uint64("history_id", payload.HistoryID),
	}
	account, err := s.store.GetByMailbox(ctx, payload.EmailAddress)
	switch {
	case err == nil:
		attrs = append(attrs, logging.Account(account.ID))
	case errors.Is(err, store.ErrNotFound):
		// A notification for a mailbox we no longer track; acked and
		// dropped like any other.
	default:
		s.logger.Warn("mailbox lookup for push notification failed", logging.Err(err))
	}

	s.logger.Info("inbox change notification received", attrs...)
}
