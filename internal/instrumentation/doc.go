// Package instrumentation provides OpenTelemetry metrics, tracing and the
// session audit log for freetime.
//
// # Metrics
//
// Provider metrics:
//   - provider_fetches_total / provider_fetch_duration_seconds by provider, operation, status
//   - provider_retries_total by provider and throttling status code
//
// Session metrics:
//   - auth_attempts_total by provider, mode (silent, interactive) and result
//   - session_panics_total by reason
//   - connected_providers gauge by provider
//
// Availability metrics:
//   - availability_refreshes_total / availability_refresh_duration_seconds
//
// MCP metrics:
//   - mcp_tool_invocations_total / mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for each refresh (availability.refresh), each provider
// fetch (<provider>.busy, <provider>.details) and each MCP tool call
// (tool.<name>). Event titles and tokens never become span attributes.
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG, OTEL_SERVICE_NAME
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordProviderFetch(ctx, "google", instrumentation.OperationBusy,
//		instrumentation.StatusSuccess, "", time.Since(start))
package instrumentation
