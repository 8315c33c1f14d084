package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrProvider    = "provider"
	attrOperation   = "operation"
	attrStatus      = "status"
	attrMode        = "mode"
	attrResult      = "result"
	attrGranularity = "granularity"
	attrReason      = "reason"
	attrTool        = "tool"
	attrAccount     = "account"
)

// Metrics records availability engine metrics. A zero or nil Metrics is a
// no-op recorder.
type Metrics struct {
	providerFetchesTotal  metric.Int64Counter
	providerFetchDuration metric.Float64Histogram
	providerRetriesTotal  metric.Int64Counter
	authAttemptsTotal     metric.Int64Counter
	refreshesTotal        metric.Int64Counter
	refreshDuration       metric.Float64Histogram
	panicsTotal           metric.Int64Counter
	connectedProviders    metric.Int64UpDownCounter
	toolInvocationsTotal  metric.Int64Counter
	toolDuration          metric.Float64Histogram

	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error

	m.providerFetchesTotal, err = meter.Int64Counter(
		"provider_fetches_total",
		metric.WithDescription("Total number of calendar provider fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_fetches_total counter: %w", err)
	}

	m.providerFetchDuration, err = meter.Float64Histogram(
		"provider_fetch_duration_seconds",
		metric.WithDescription("Calendar provider fetch duration in seconds, retries included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_fetch_duration_seconds histogram: %w", err)
	}

	m.providerRetriesTotal, err = meter.Int64Counter(
		"provider_retries_total",
		metric.WithDescription("Total number of throttled provider requests that were retried"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider_retries_total counter: %w", err)
	}

	m.authAttemptsTotal, err = meter.Int64Counter(
		"auth_attempts_total",
		metric.WithDescription("Total number of token acquisition attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth_attempts_total counter: %w", err)
	}

	m.refreshesTotal, err = meter.Int64Counter(
		"availability_refreshes_total",
		metric.WithDescription("Total number of availability refreshes"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create availability_refreshes_total counter: %w", err)
	}

	m.refreshDuration, err = meter.Float64Histogram(
		"availability_refresh_duration_seconds",
		metric.WithDescription("Availability refresh duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create availability_refresh_duration_seconds histogram: %w", err)
	}

	m.panicsTotal, err = meter.Int64Counter(
		"session_panics_total",
		metric.WithDescription("Total number of session resets by reason"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session_panics_total counter: %w", err)
	}

	m.connectedProviders, err = meter.Int64UpDownCounter(
		"connected_providers",
		metric.WithDescription("Number of providers currently connected"),
		metric.WithUnit("{provider}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connected_providers gauge: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordProviderFetch records one adapter fetch.
//
// Parameters:
//   - provider: "microsoft" or "google"
//   - operation: OperationBusy or OperationDetails
//   - status: StatusSuccess, StatusError or StatusAuth
//   - account: anonymized account label, only attached with detailed labels
func (m *Metrics) RecordProviderFetch(ctx context.Context, provider, operation, status, account string, duration time.Duration) {
	if m == nil || m.providerFetchesTotal == nil || m.providerFetchDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrProvider, provider),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.providerFetchesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.providerFetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRetry records a throttled response that will be retried.
func (m *Metrics) RecordRetry(ctx context.Context, provider string, statusCode int) {
	if m == nil || m.providerRetriesTotal == nil {
		return
	}

	m.providerRetriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	))
}

// RecordAuth records a token acquisition attempt.
// Mode is AuthModeSilent or AuthModeInteractive.
func (m *Metrics) RecordAuth(ctx context.Context, provider, mode, result string) {
	if m == nil || m.authAttemptsTotal == nil {
		return
	}

	m.authAttemptsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrProvider, provider),
		attribute.String(attrMode, mode),
		attribute.String(attrResult, result),
	))
}

// RecordRefresh records one orchestrator refresh.
func (m *Metrics) RecordRefresh(ctx context.Context, granularity, status string, duration time.Duration) {
	if m == nil || m.refreshesTotal == nil || m.refreshDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrGranularity, granularity),
		attribute.String(attrStatus, status),
	}

	m.refreshesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.refreshDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordPanic records a session reset, e.g. "user" or "inactivity".
func (m *Metrics) RecordPanic(ctx context.Context, reason string) {
	if m == nil || m.panicsTotal == nil {
		return
	}

	m.panicsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// ProviderConnected increments the connected providers gauge.
func (m *Metrics) ProviderConnected(ctx context.Context, provider string) {
	if m == nil || m.connectedProviders == nil {
		return
	}

	m.connectedProviders.Add(ctx, 1, metric.WithAttributes(attribute.String(attrProvider, provider)))
}

// ProviderDisconnected decrements the connected providers gauge.
func (m *Metrics) ProviderDisconnected(ctx context.Context, provider string) {
	if m == nil || m.connectedProviders == nil {
		return
	}

	m.connectedProviders.Add(ctx, -1, metric.WithAttributes(attribute.String(attrProvider, provider)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
