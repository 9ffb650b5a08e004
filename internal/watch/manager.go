package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/relayworks/mailwatch/internal/instrumentation"
	"github.com/relayworks/mailwatch/internal/logging"
	"github.com/relayworks/mailwatch/internal/store"
)

// Sentinel errors for lifecycle operations.
var (
	// ErrAccountNotFound indicates the account id has no stored record.
	ErrAccountNotFound = errors.New("watch: account not found")

	// ErrNoRefreshToken indicates the account never granted offline
	// access, so its watch cannot be renewed unattended.
	ErrNoRefreshToken = errors.New("watch: offline access not granted")
)

// ProviderError wraps a failure reported by the mail provider's API. The
// lifecycle does not retry provider failures; callers decide.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("watch: provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// tokenSourcer builds refreshing token sources from stored credentials.
// Satisfied by google.Client.
type tokenSourcer interface {
	TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource
}

// ManagerConfig wires a Manager's collaborators and policy.
type ManagerConfig struct {
	Store  *store.Store
	Tokens tokenSourcer
	API    ProviderAPI

	// Topic is the fully qualified Pub/Sub topic watches publish to.
	Topic string

	// ChannelPrefix names the per-account notification channel:
	// "<prefix>-<accountID>".
	ChannelPrefix string

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Manager drives the provider-side watch lifecycle for stored accounts.
type Manager struct {
	store         *store.Store
	tokens        tokenSourcer
	api           ProviderAPI
	topic         string
	channelPrefix string
	logger        *slog.Logger
	metrics       *instrumentation.Metrics
}

// NewManager builds a Manager. API defaults to the Gmail implementation.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.API == nil {
		cfg.API = NewGmailAPI()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &instrumentation.Metrics{}
	}
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "mailwatch"
	}

	return &Manager{
		store:         cfg.Store,
		tokens:        cfg.Tokens,
		api:           cfg.API,
		topic:         cfg.Topic,
		channelPrefix: cfg.ChannelPrefix,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// Establish registers a watch for the account and persists the resulting
// subscription. Returns ErrAccountNotFound for an unknown id and a
// *ProviderError when the provider rejects the watch call.
func (m *Manager) Establish(ctx context.Context, accountID string) (*store.Subscription, error) {
	a, err := m.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, a)
}

// establish runs the watch call for an already loaded account.
func (m *Manager) establish(ctx context.Context, a *store.Account) (*store.Subscription, error) {
	start := time.Now()
	ts := m.tokens.TokenSource(ctx, &oauth2.Token{
		AccessToken:  a.Credentials.AccessToken,
		RefreshToken: a.Credentials.RefreshToken,
		Expiry:       a.Credentials.Expiry,
	})

	result, err := m.api.Watch(ctx, ts, m.topic)
	if err != nil {
		m.metrics.RecordWatchOperation(ctx, instrumentation.WatchOpEstablish, instrumentation.StatusError, time.Since(start))
		return nil, &ProviderError{Op: "watch", Err: err}
	}

	m.persistRotatedToken(ctx, a, ts)

	sub := &store.Subscription{
		HistoryID: result.HistoryID,
		Expiry:    result.Expiry,
		Channel:   fmt.Sprintf("%s-%s", m.channelPrefix, a.ID),
	}
	if err := m.store.UpdateSubscription(ctx, a.ID, sub); err != nil {
		m.metrics.RecordWatchOperation(ctx, instrumentation.WatchOpEstablish, instrumentation.StatusError, time.Since(start))
		return nil, err
	}

	m.metrics.RecordWatchOperation(ctx, instrumentation.WatchOpEstablish, instrumentation.StatusSuccess, time.Since(start))
	m.logger.Info("watch established",
		logging.Account(a.ID),
		logging.UserHash(a.MailboxAddress),
		slog.String("history_id", sub.HistoryID),
		slog.Time("expiry", sub.Expiry))
	return sub, nil
}

// Renew re-establishes the watch for an account nearing expiry. It never
// returns an error: every failure mode is captured in the result so a batch
// can keep going and report accurately.
func (m *Manager) Renew(ctx context.Context, accountID string) RenewalResult {
	result := RenewalResult{
		AccountID: accountID,
		RenewedAt: time.Now().UTC(),
	}

	a, err := m.load(ctx, accountID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.MailboxAddress = a.MailboxAddress

	if !a.Credentials.HasRefreshToken() {
		// Renewal runs unattended; without a refresh token the access
		// token cannot be rotated once it lapses.
		m.logger.Warn("cannot renew watch without offline access",
			logging.Account(a.ID),
			logging.UserHash(a.MailboxAddress))
		result.Error = ErrNoRefreshToken.Error()
		return result
	}

	sub, err := m.establish(ctx, a)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.NewExpiry = &sub.Expiry
	return result
}

// Teardown stops the provider watch and clears the stored subscription.
func (m *Manager) Teardown(ctx context.Context, accountID string) error {
	a, err := m.load(ctx, accountID)
	if err != nil {
		return err
	}

	start := time.Now()
	ts := m.tokens.TokenSource(ctx, &oauth2.Token{
		AccessToken:  a.Credentials.AccessToken,
		RefreshToken: a.Credentials.RefreshToken,
		Expiry:       a.Credentials.Expiry,
	})

	if err := m.api.Stop(ctx, ts); err != nil {
		m.metrics.RecordWatchOperation(ctx, instrumentation.WatchOpTeardown, instrumentation.StatusError, time.Since(start))
		return &ProviderError{Op: "stop", Err: err}
	}

	if err := m.store.UpdateSubscription(ctx, a.ID, nil); err != nil {
		return err
	}

	m.metrics.RecordWatchOperation(ctx, instrumentation.WatchOpTeardown, instrumentation.StatusSuccess, time.Since(start))
	m.logger.Info("watch stopped", logging.Account(a.ID), logging.UserHash(a.MailboxAddress))
	return nil
}

func (m *Manager) load(ctx context.Context, accountID string) (*store.Account, error) {
	a, err := m.store.GetByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// persistRotatedToken writes back a refreshed access token so the next
// lifecycle call starts from a live credential. Best effort; a write
// failure costs one extra refresh later, not correctness.
func (m *Manager) persistRotatedToken(ctx context.Context, a *store.Account, ts oauth2.TokenSource) {
	tok, err := ts.Token()
	if err != nil || tok.AccessToken == a.Credentials.AccessToken {
		return
	}

	creds := store.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: a.Credentials.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if tok.RefreshToken != "" {
		creds.RefreshToken = tok.RefreshToken
	}

	if err := m.store.UpdateCredentials(ctx, a.ID, creds); err != nil {
		m.logger.Warn("failed to persist rotated access token",
			logging.Account(a.ID),
			logging.Err(err))
		return
	}
	m.metrics.RecordTokenRefresh(ctx, instrumentation.StatusSuccess)
}
