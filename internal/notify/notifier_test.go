package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifySuccess(t *testing.T) {
	var got envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{RegistrationURL: srv.URL})
	outcome := n.Notify(context.Background(), EventClientRegistered, map[string]string{"accountId": "a-1"})

	assert.True(t, outcome.Delivered())
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, EventClientRegistered, got.Event)
	assert.False(t, got.Timestamp.IsZero())
}

func TestNotifyRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var delays []time.Duration
	n := New(Config{
		RenewalURL:  srv.URL,
		MaxAttempts: 4,
		BaseDelay:   100 * time.Millisecond,
		Sleep:       func(d time.Duration) { delays = append(delays, d) },
	})

	outcome := n.Notify(context.Background(), EventWatchRenewalBatch, nil)

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, 4, outcome.Attempts)
	assert.Error(t, outcome.Err)
	assert.EqualValues(t, 4, calls.Load())

	// Exponential schedule: base, 2x, 4x. No sleep after the last attempt.
	require.Len(t, delays, 3)
	assert.Equal(t, 100*time.Millisecond, delays[0])
	assert.Equal(t, 200*time.Millisecond, delays[1])
	assert.Equal(t, 400*time.Millisecond, delays[2])
	for i := 1; i < len(delays); i++ {
		assert.Greater(t, delays[i], delays[i-1])
	}
}

func TestNotifyRecoversMidSequence(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := New(Config{
		RegistrationURL: srv.URL,
		MaxAttempts:     5,
		Sleep:           func(time.Duration) {},
	})

	outcome := n.Notify(context.Background(), EventClientRegistered, nil)
	assert.True(t, outcome.Delivered())
	assert.Equal(t, 3, outcome.Attempts)
}

func TestNotifyUnconfiguredEndpointSkips(t *testing.T) {
	slept := false
	n := New(Config{
		// RegistrationURL deliberately unset.
		RenewalURL: "http://127.0.0.1:1/unused",
		Sleep:      func(time.Duration) { slept = true },
	})

	outcome := n.Notify(context.Background(), EventClientRegistered, nil)

	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, 0, outcome.Attempts)
	assert.NoError(t, outcome.Err)
	assert.False(t, slept)
}

func TestNotifyUnreachableReceiver(t *testing.T) {
	n := New(Config{
		RenewalURL:  "http://127.0.0.1:1/webhook",
		MaxAttempts: 2,
		Timeout:     500 * time.Millisecond,
		Sleep:       func(time.Duration) {},
	})

	outcome := n.Notify(context.Background(), EventWatchRenewalBatch, nil)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Error(t, outcome.Err)
}

func TestConfigDefaults(t *testing.T) {
	n := New(Config{})
	assert.Equal(t, 3, n.maxAttempts)
	assert.Equal(t, time.Second, n.baseDelay)
	assert.NotNil(t, n.sleep)
}
