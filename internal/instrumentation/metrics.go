package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrEvent     = "event"
	attrOutcome   = "outcome"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// OAuth metrics
	oauthHandshakesTotal   metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// Watch lifecycle metrics
	watchOperationsTotal   metric.Int64Counter
	watchOperationDuration metric.Float64Histogram
	watchedAccounts        metric.Int64UpDownCounter

	// Renewal batch metrics
	renewalBatchSize     metric.Int64Histogram
	renewalBatchDuration metric.Float64Histogram

	// Webhook metrics
	webhookDeliveriesTotal metric.Int64Counter

	// Push ingestion metrics
	pushEnvelopesTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	// OAuth Metrics
	m.oauthHandshakesTotal, err = meter.Int64Counter(
		"oauth_handshakes_total",
		metric.WithDescription("Total number of completed OAuth handshakes"),
		metric.WithUnit("{handshake}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_handshakes_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	// Watch Lifecycle Metrics
	m.watchOperationsTotal, err = meter.Int64Counter(
		"watch_operations_total",
		metric.WithDescription("Total number of mailbox watch operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watch_operations_total counter: %w", err)
	}

	m.watchOperationDuration, err = meter.Float64Histogram(
		"watch_operation_duration_seconds",
		metric.WithDescription("Mailbox watch operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watch_operation_duration_seconds histogram: %w", err)
	}

	m.watchedAccounts, err = meter.Int64UpDownCounter(
		"watched_accounts",
		metric.WithDescription("Number of accounts with an active mailbox watch"),
		metric.WithUnit("{account}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watched_accounts gauge: %w", err)
	}

	// Renewal Batch Metrics
	m.renewalBatchSize, err = meter.Int64Histogram(
		"renewal_batch_size",
		metric.WithDescription("Number of accounts processed per renewal batch"),
		metric.WithUnit("{account}"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal_batch_size histogram: %w", err)
	}

	m.renewalBatchDuration, err = meter.Float64Histogram(
		"renewal_batch_duration_seconds",
		metric.WithDescription("Renewal batch duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal_batch_duration_seconds histogram: %w", err)
	}

	// Webhook Metrics
	m.webhookDeliveriesTotal, err = meter.Int64Counter(
		"webhook_deliveries_total",
		metric.WithDescription("Total number of webhook delivery outcomes"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook_deliveries_total counter: %w", err)
	}

	// Push Ingestion Metrics
	m.pushEnvelopesTotal, err = meter.Int64Counter(
		"push_envelopes_total",
		metric.WithDescription("Total number of push notification envelopes received"),
		metric.WithUnit("{envelope}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create push_envelopes_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordHandshake records a completed OAuth handshake.
// Result should be one of: "success", "denied", "failure".
func (m *Metrics) RecordHandshake(ctx context.Context, result string) {
	if m.oauthHandshakesTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthHandshakesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "error".
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrResult, result),
	))
}

// RecordWatchOperation records a mailbox watch operation with operation
// kind, status, and duration.
//
// Parameters:
//   - operation: Lifecycle operation ("establish", "renew", "teardown")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordWatchOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m.watchOperationsTotal == nil || m.watchOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.watchOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.watchOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRenewalBatch records the size and duration of one renewal batch run.
func (m *Metrics) RecordRenewalBatch(ctx context.Context, size int, duration time.Duration) {
	if m.renewalBatchSize == nil || m.renewalBatchDuration == nil {
		return // Instrumentation not initialized
	}

	m.renewalBatchSize.Record(ctx, int64(size))
	m.renewalBatchDuration.Record(ctx, duration.Seconds())
}

// RecordWebhookDelivery records the outcome of one webhook delivery sequence.
// Outcome should be one of: "delivered", "failed", "skipped".
func (m *Metrics) RecordWebhookDelivery(ctx context.Context, event, outcome string) {
	if m.webhookDeliveriesTotal == nil {
		return // Instrumentation not initialized
	}

	m.webhookDeliveriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrEvent, event),
		attribute.String(attrOutcome, outcome),
	))
}

// RecordPushEnvelope records a received push notification envelope.
// Status should be one of: "decoded", "malformed".
func (m *Metrics) RecordPushEnvelope(ctx context.Context, status string) {
	if m.pushEnvelopesTotal == nil {
		return // Instrumentation not initialized
	}

	m.pushEnvelopesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStatus, status),
	))
}

// IncrementWatchedAccounts increments the watched accounts gauge.
func (m *Metrics) IncrementWatchedAccounts(ctx context.Context) {
	if m.watchedAccounts == nil {
		return // Instrumentation not initialized
	}

	m.watchedAccounts.Add(ctx, 1)
}

// DecrementWatchedAccounts decrements the watched accounts gauge.
func (m *Metrics) DecrementWatchedAccounts(ctx context.Context) {
	if m.watchedAccounts == nil {
		return // Instrumentation not initialized
	}

	m.watchedAccounts.Add(ctx, -1)
}
