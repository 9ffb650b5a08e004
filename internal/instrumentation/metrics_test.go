package instrumentation

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()

	provider := metric.NewMeterProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("expected no error creating metrics, got %v", err)
	}
	return m
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m := newTestMetrics(t)

	// Should not panic
	m.RecordHTTPRequest(context.Background(), "GET", "/health", 200, 5*time.Millisecond)
	m.RecordHTTPRequest(context.Background(), "POST", "/auth/refresh", 404, 12*time.Millisecond)
}

func TestMetrics_RecordHandshake(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordHandshake(context.Background(), HandshakeSuccess)
	m.RecordHandshake(context.Background(), HandshakeDenied)
	m.RecordHandshake(context.Background(), HandshakeFailure)
}

func TestMetrics_RecordWatchOperation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordWatchOperation(context.Background(), WatchOpEstablish, StatusSuccess, 100*time.Millisecond)
	m.RecordWatchOperation(context.Background(), WatchOpRenew, StatusError, 50*time.Millisecond)
	m.RecordWatchOperation(context.Background(), WatchOpTeardown, StatusSuccess, 30*time.Millisecond)
}

func TestMetrics_RecordRenewalBatch(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRenewalBatch(context.Background(), 0, time.Millisecond)
	m.RecordRenewalBatch(context.Background(), 42, 3*time.Second)
}

func TestMetrics_RecordWebhookDelivery(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordWebhookDelivery(context.Background(), "client_registered", "delivered")
	m.RecordWebhookDelivery(context.Background(), "watch_renewal_batch", "failed")
	m.RecordWebhookDelivery(context.Background(), "client_registered", "skipped")
}

func TestMetrics_WatchedAccountsGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.IncrementWatchedAccounts(context.Background())
	m.IncrementWatchedAccounts(context.Background())
	m.DecrementWatchedAccounts(context.Background())
}

func TestMetrics_Uninitialized(t *testing.T) {
	// A zero-value Metrics is the no-op recorder used when instrumentation
	// is disabled. Every Record method must be nil-safe.
	m := &Metrics{}
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "GET", "/health", 200, time.Millisecond)
	m.RecordHandshake(ctx, HandshakeSuccess)
	m.RecordTokenRefresh(ctx, StatusSuccess)
	m.RecordWatchOperation(ctx, WatchOpRenew, StatusSuccess, time.Millisecond)
	m.RecordRenewalBatch(ctx, 1, time.Millisecond)
	m.RecordWebhookDelivery(ctx, "client_registered", "delivered")
	m.RecordPushEnvelope(ctx, "decoded")
	m.IncrementWatchedAccounts(ctx)
	m.DecrementWatchedAccounts(ctx)
}
