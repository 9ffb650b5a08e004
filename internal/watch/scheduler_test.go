package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayworks/mailwatch/internal/notify"
	"github.com/relayworks/mailwatch/internal/store"
)

// fakeRenewer succeeds or fails per account id.
type fakeRenewer struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeRenewer) Renew(_ context.Context, accountID string) RenewalResult {
	f.mu.Lock()
	f.calls = append(f.calls, accountID)
	f.mu.Unlock()

	result := RenewalResult{
		AccountID:      accountID,
		MailboxAddress: accountID + "@gmail.example",
		RenewedAt:      time.Now().UTC(),
	}
	if f.fail[accountID] {
		result.Error = "provider watch failed"
		return result
	}
	expiry := time.Now().Add(7 * 24 * time.Hour).UTC()
	result.Success = true
	result.NewExpiry = &expiry
	return result
}

// captureNotifier records the batch report it was handed.
type captureNotifier struct {
	mu      sync.Mutex
	kinds   []notify.EventKind
	payload any
}

func (c *captureNotifier) Notify(_ context.Context, kind notify.EventKind, payload any) notify.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
	c.payload = payload
	return notify.Outcome{Status: notify.StatusDelivered, Attempts: 1}
}

func subExpiringIn(d time.Duration) *store.Subscription {
	return &store.Subscription{
		HistoryID: "100",
		Expiry:    time.Now().Add(d).UTC(),
		Channel:   "mailwatch-test",
	}
}

func TestRunBatchAccounting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Three due within the 48h horizon, one comfortably outside, one with
	// no subscription at all.
	seedAccount(t, s, "due-1", "r", subExpiringIn(2*time.Hour))
	seedAccount(t, s, "due-2", "r", subExpiringIn(12*time.Hour))
	seedAccount(t, s, "due-3", "r", subExpiringIn(36*time.Hour))
	seedAccount(t, s, "later", "r", subExpiringIn(30*24*time.Hour))
	seedAccount(t, s, "unwatched", "r", nil)

	renewer := &fakeRenewer{fail: map[string]bool{"due-2": true}}
	notifier := &captureNotifier{}
	sched := NewScheduler(SchedulerConfig{Store: s, Renewer: renewer, Notifier: notifier})

	summary, err := sched.RunBatch(ctx, 48)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 3)

	// Results keep the selection order: soonest expiry first.
	assert.Equal(t, "due-1", summary.Results[0].AccountID)
	assert.Equal(t, "due-2", summary.Results[1].AccountID)
	assert.Equal(t, "due-3", summary.Results[2].AccountID)
	assert.False(t, summary.Results[1].Success)
	assert.Equal(t, "provider watch failed", summary.Results[1].Error)

	assert.ElementsMatch(t, []string{"due-1", "due-2", "due-3"}, renewer.calls)

	// One batch report, carrying the summary itself.
	require.Equal(t, []notify.EventKind{notify.EventWatchRenewalBatch}, notifier.kinds)
	assert.Same(t, summary, notifier.payload)
}

func TestRunBatchEmptySelection(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, "later", "r", subExpiringIn(30*24*time.Hour))

	renewer := &fakeRenewer{}
	notifier := &captureNotifier{}
	sched := NewScheduler(SchedulerConfig{Store: s, Renewer: renewer, Notifier: notifier})

	summary, err := sched.RunBatch(context.Background(), 48)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.TotalProcessed)
	assert.Empty(t, renewer.calls)
	// An empty batch still reports; downstream sees the heartbeat.
	assert.Len(t, notifier.kinds, 1)
}

func TestRunBatchWithoutNotifier(t *testing.T) {
	s := newTestStore(t)
	seedAccount(t, s, "due-1", "r", subExpiringIn(time.Hour))

	sched := NewScheduler(SchedulerConfig{Store: s, Renewer: &fakeRenewer{}})

	summary, err := sched.RunBatch(context.Background(), 48)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
}

func TestRunBatchStoreEffects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// One renewable account and one that never granted offline access,
	// driven through the real manager against a scripted provider.
	seedAccount(t, s, "good", "refresh-good", subExpiringIn(2*time.Hour))
	seedAccount(t, s, "no-offline", "", subExpiringIn(2*time.Hour))

	newExpiry := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Second)
	m := newTestManager(s, &fakeAPI{result: WatchResult{HistoryID: "900", Expiry: newExpiry}})
	sched := NewScheduler(SchedulerConfig{Store: s, Renewer: m})

	summary, err := sched.RunBatch(ctx, 48)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalProcessed)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)

	good, err := s.GetByID(ctx, "good")
	require.NoError(t, err)
	require.NotNil(t, good.Subscription)
	assert.Equal(t, newExpiry, good.Subscription.Expiry.UTC())
	require.NotNil(t, good.LastRenewedAt)

	// The unrenewable account keeps its old, soon-to-lapse subscription.
	stale, err := s.GetByID(ctx, "no-offline")
	require.NoError(t, err)
	require.NotNil(t, stale.Subscription)
	assert.Equal(t, "100", stale.Subscription.HistoryID)
	assert.Nil(t, stale.LastRenewedAt)
}
