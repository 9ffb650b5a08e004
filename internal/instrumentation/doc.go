// Package instrumentation provides OpenTelemetry instrumentation for the
// mailwatch service.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, OAuth handshakes, watch
//     lifecycle operations, renewal batches and webhook deliveries
//   - Distributed tracing for request flows and provider API calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// OAuth Metrics:
//   - oauth_handshakes_total: Counter of completed handshakes by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Watch Lifecycle Metrics:
//   - watch_operations_total: Counter of watch operations by operation and status
//   - watch_operation_duration_seconds: Histogram of watch operation durations
//   - watched_accounts: Gauge of accounts with an active mailbox watch
//
// Renewal Batch Metrics:
//   - renewal_batch_size: Histogram of accounts processed per batch
//   - renewal_batch_duration_seconds: Histogram of batch durations
//
// Delivery Metrics:
//   - webhook_deliveries_total: Counter of webhook outcomes by event and outcome
//   - push_envelopes_total: Counter of received push envelopes by status
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: mailwatch)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "mailwatch",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	recorder := provider.Metrics()
//	recorder.RecordHTTPRequest(ctx, "POST", "/auth/refresh", 200, time.Since(start))
//	recorder.RecordWatchOperation(ctx, instrumentation.WatchOpRenew, "success", time.Since(start))
package instrumentation
