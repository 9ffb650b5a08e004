package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/relayworks/mailwatch/internal/logging"
)

// EventKind identifies the lifecycle event carried by a webhook delivery.
type EventKind string

const (
	// EventClientRegistered is sent once after a successful handshake.
	EventClientRegistered EventKind = "client_registered"

	// EventWatchRenewalBatch is sent after every renewal batch.
	EventWatchRenewalBatch EventKind = "watch_renewal_batch"
)

// Status values for a delivery outcome.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Outcome describes the result of a delivery attempt sequence. Delivery
// failures are reported here, never raised: notification must not block
// the caller's primary operation.
type Outcome struct {
	Status   string
	Attempts int
	Err      error
}

// Delivered reports whether the payload reached the receiver.
func (o Outcome) Delivered() bool {
	return o.Status == StatusDelivered
}

// envelope is the wire format for every outbound webhook payload.
type envelope struct {
	Event     EventKind `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// TokenData mirrors the credential set in the registration event payload.
type TokenData struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// RegistrationData is the payload of a client_registered event.
type RegistrationData struct {
	AccountID      string    `json:"accountId"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Company        string    `json:"company"`
	MailboxAddress string    `json:"mailboxAddress"`
	RegisteredAt   time.Time `json:"registeredAt"`
	Tokens         TokenData `json:"tokens"`
}

// Config holds the delivery policy for a Notifier. Endpoint URLs are each
// independently optional; an empty URL disables that channel.
type Config struct {
	RegistrationURL string
	RenewalURL      string
	MaxAttempts     int
	BaseDelay       time.Duration
	Timeout         time.Duration
	Logger          *slog.Logger

	// Sleep is replaced in tests to make the backoff schedule observable.
	Sleep func(time.Duration)
}

// Notifier delivers lifecycle events to the downstream automation receiver
// with bounded exponential backoff.
type Notifier struct {
	endpoints   map[EventKind]string
	client      *http.Client
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(time.Duration)
	logger      *slog.Logger
}

// New builds a Notifier from the given config, applying defaults for any
// unset policy field.
func New(cfg Config) *Notifier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Notifier{
		endpoints: map[EventKind]string{
			EventClientRegistered:  cfg.RegistrationURL,
			EventWatchRenewalBatch: cfg.RenewalURL,
		},
		client:      &http.Client{Timeout: cfg.Timeout},
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		sleep:       cfg.Sleep,
		logger:      cfg.Logger,
	}
}

// Notify delivers one event. It retries with exponential backoff (base
// delay doubling per attempt) up to the configured maximum and then gives
// up with a failed outcome. An unconfigured endpoint short-circuits to a
// skipped outcome without consuming the retry budget.
func (n *Notifier) Notify(ctx context.Context, kind EventKind, payload any) Outcome {
	endpoint := n.endpoints[kind]
	if endpoint == "" {
		n.logger.Debug("webhook endpoint not configured, skipping delivery", logging.Event(string(kind)))
		return Outcome{Status: StatusSkipped}
	}

	body, err := json.Marshal(envelope{
		Event:     kind,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("notify: failed to encode payload: %w", err)}
	}

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		lastErr = n.deliver(ctx, endpoint, body)
		if lastErr == nil {
			n.logger.Info("webhook delivered",
				logging.Event(string(kind)),
				slog.Int("attempts", attempt))
			return Outcome{Status: StatusDelivered, Attempts: attempt}
		}

		n.logger.Warn("webhook delivery attempt failed",
			logging.Event(string(kind)),
			slog.Int("attempt", attempt),
			logging.Err(lastErr))

		if attempt < n.maxAttempts {
			n.sleep(n.baseDelay << (attempt - 1))
		}
	}

	n.logger.Error("webhook delivery exhausted retries",
		logging.Event(string(kind)),
		slog.Int("attempts", n.maxAttempts),
		logging.Err(lastErr))
	return Outcome{Status: StatusFailed, Attempts: n.maxAttempts, Err: lastErr}
}

func (n *Notifier) deliver(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: receiver returned status %d", resp.StatusCode)
	}
	return nil
}
