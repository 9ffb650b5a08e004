package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/relayworks/mailwatch/internal/store"
	"github.com/relayworks/mailwatch/internal/vault"
)

const testKey = "0123456789abcdef0123456789abcdef"

// staticTokens hands back a non-refreshing token source, keeping tests off
// the network.
type staticTokens struct{}

func (staticTokens) TokenSource(_ context.Context, token *oauth2.Token) oauth2.TokenSource {
	return oauth2.StaticTokenSource(token)
}

// fakeAPI is a scripted ProviderAPI.
type fakeAPI struct {
	mu         sync.Mutex
	watchCalls int
	stopCalls  int
	watchErr   error
	stopErr    error
	result     WatchResult
}

func (f *fakeAPI) Watch(_ context.Context, _ oauth2.TokenSource, _ string) (*WatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCalls++
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	r := f.result
	return &r, nil
}

func (f *fakeAPI) Stop(_ context.Context, _ oauth2.TokenSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	v, err := vault.New(testKey, nil)
	require.NoError(t, err)

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), v)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAccount(t *testing.T, s *store.Store, id string, refreshToken string, sub *store.Subscription) {
	t.Helper()
	require.NoError(t, s.Upsert(context.Background(), &store.Account{
		ID:             id,
		OwnerName:      "Alice",
		OwnerEmail:     "alice@corp.example",
		OwnerOrg:       "Example Corp",
		MailboxAddress: id + "@gmail.example",
		Credentials: store.Credentials{
			AccessToken:  "access-" + id,
			RefreshToken: refreshToken,
			Expiry:       time.Now().Add(time.Hour).UTC(),
		},
		Subscription: sub,
		RegisteredAt: time.Now().UTC(),
	}))
}

func newTestManager(s *store.Store, api ProviderAPI) *Manager {
	return NewManager(ManagerConfig{
		Store:         s,
		Tokens:        staticTokens{},
		API:           api,
		Topic:         "projects/test/topics/inbound-mail",
		ChannelPrefix: "mailwatch",
	})
}

func TestEstablishPersistsSubscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "acc-1", "refresh-acc-1", nil)

	expiry := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)
	api := &fakeAPI{result: WatchResult{HistoryID: "12345", Expiry: expiry}}
	m := newTestManager(s, api)

	sub, err := m.Establish(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "12345", sub.HistoryID)
	assert.Equal(t, "mailwatch-acc-1", sub.Channel)
	assert.Equal(t, expiry, sub.Expiry)
	assert.Equal(t, 1, api.watchCalls)

	got, err := s.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got.Subscription)
	assert.Equal(t, "12345", got.Subscription.HistoryID)
	require.NotNil(t, got.LastRenewedAt)
}

func TestEstablishUnknownAccount(t *testing.T) {
	s := newTestStore(t)
	m := newTestManager(s, &fakeAPI{})

	_, err := m.Establish(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestEstablishProviderFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "acc-1", "refresh-acc-1", nil)

	m := newTestManager(s, &fakeAPI{watchErr: errors.New("topic not found")})

	_, err := m.Establish(ctx, "acc-1")
	var pErr *ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "watch", pErr.Op)

	// The failed call must leave no half-written subscription behind.
	got, err := s.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Nil(t, got.Subscription)
}

func TestRenewWithoutOfflineAccess(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, "acc-1", "", nil)

	api := &fakeAPI{}
	m := newTestManager(s, api)

	result := m.Renew(context.Background(), "acc-1")
	assert.False(t, result.Success)
	assert.Equal(t, ErrNoRefreshToken.Error(), result.Error)
	assert.Nil(t, result.NewExpiry)
	assert.Equal(t, "acc-1@gmail.example", result.MailboxAddress)

	// Declared unrenewable before any provider traffic.
	assert.Equal(t, 0, api.watchCalls)
}

func TestRenewExtendsExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	oldExpiry := time.Now().Add(2 * time.Hour).UTC()
	seedAccount(t, s, "acc-1", "refresh-acc-1", &store.Subscription{
		HistoryID: "100",
		Expiry:    oldExpiry,
		Channel:   "mailwatch-acc-1",
	})

	newExpiry := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)
	m := newTestManager(s, &fakeAPI{result: WatchResult{HistoryID: "200", Expiry: newExpiry}})

	result := m.Renew(ctx, "acc-1")
	require.True(t, result.Success, "renewal failed: %s", result.Error)
	require.NotNil(t, result.NewExpiry)
	assert.True(t, result.NewExpiry.After(oldExpiry))
	assert.False(t, result.RenewedAt.IsZero())

	got, err := s.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got.Subscription)
	assert.Equal(t, "200", got.Subscription.HistoryID)
	assert.Equal(t, newExpiry, got.Subscription.Expiry.UTC())
}

func TestRenewUnknownAccount(t *testing.T) {
	s := newTestStore(t)
	m := newTestManager(s, &fakeAPI{})

	result := m.Renew(context.Background(), "missing")
	assert.False(t, result.Success)
	assert.Equal(t, ErrAccountNotFound.Error(), result.Error)
}

func TestTeardownClearsSubscription(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, s, "acc-1", "refresh-acc-1", &store.Subscription{
		HistoryID: "100",
		Expiry:    time.Now().Add(time.Hour).UTC(),
		Channel:   "mailwatch-acc-1",
	})

	api := &fakeAPI{}
	m := newTestManager(s, api)

	require.NoError(t, m.Teardown(ctx, "acc-1"))
	assert.Equal(t, 1, api.stopCalls)

	got, err := s.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	assert.Nil(t, got.Subscription)
}

func TestTeardownProviderFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sub := &store.Subscription{
		HistoryID: "100",
		Expiry:    time.Now().Add(time.Hour).UTC(),
		Channel:   "mailwatch-acc-1",
	}
	seedAccount(t, s, "acc-1", "refresh-acc-1", sub)

	m := newTestManager(s, &fakeAPI{stopErr: errors.New("backend unavailable")})

	err := m.Teardown(ctx, "acc-1")
	var pErr *ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "stop", pErr.Op)

	// The subscription stays until the provider confirms the stop.
	got, err := s.GetByID(ctx, "acc-1")
	require.NoError(t, err)
	require.NotNil(t, got.Subscription)
}
