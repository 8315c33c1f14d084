package instrumentation

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailed bool) (*Metrics, *metric.ManualReader) {
	t.Helper()

	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s is not an int64 sum", m.Name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_Recorders(t *testing.T) {
	ctx := context.Background()
	m, reader := newTestMetrics(t, false)

	m.RecordProviderFetch(ctx, "google", OperationBusy, StatusSuccess, "account:abc", 200*time.Millisecond)
	m.RecordProviderFetch(ctx, "microsoft", OperationDetails, StatusError, "", time.Second)
	m.RecordRetry(ctx, "microsoft", 429)
	m.RecordAuth(ctx, "google", AuthModeSilent, AuthResultSuccess)
	m.RecordAuth(ctx, "google", AuthModeInteractive, AuthResultFailure)
	m.RecordRefresh(ctx, "week", StatusSuccess, 2*time.Second)
	m.RecordPanic(ctx, "inactivity")
	m.ProviderConnected(ctx, "google")
	m.ProviderConnected(ctx, "microsoft")
	m.ProviderDisconnected(ctx, "google")
	m.RecordToolInvocation(ctx, "availability_get", StatusSuccess, 50*time.Millisecond)

	got := collect(t, reader)

	checks := map[string]int64{
		"provider_fetches_total":       2,
		"provider_retries_total":       1,
		"auth_attempts_total":          2,
		"availability_refreshes_total": 1,
		"session_panics_total":         1,
		"connected_providers":          1,
		"mcp_tool_invocations_total":   1,
	}
	for name, want := range checks {
		data, ok := got[name]
		if !ok {
			t.Errorf("metric %s not recorded", name)
			continue
		}
		if total := sumOf(t, data); total != want {
			t.Errorf("%s = %d, want %d", name, total, want)
		}
	}
	if _, ok := got["provider_fetch_duration_seconds"]; !ok {
		t.Error("expected fetch duration histogram")
	}
}

func TestMetrics_AccountLabelOnlyWhenDetailed(t *testing.T) {
	for _, detailed := range []bool{false, true} {
		m, reader := newTestMetrics(t, detailed)
		m.RecordProviderFetch(context.Background(), "google", OperationBusy, StatusSuccess, "account:abc", time.Millisecond)

		sum := collect(t, reader)["provider_fetches_total"].Data.(metricdata.Sum[int64])
		_, has := sum.DataPoints[0].Attributes.Value(attrAccount)
		if has != detailed {
			t.Errorf("detailed=%v: account label present = %v", detailed, has)
		}
	}
}

func TestMetrics_NilAndZeroAreNoOps(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	nilMetrics.RecordProviderFetch(ctx, "google", OperationBusy, StatusSuccess, "", time.Second)
	nilMetrics.RecordRetry(ctx, "google", 503)
	nilMetrics.RecordAuth(ctx, "google", AuthModeSilent, AuthResultNone)
	nilMetrics.RecordRefresh(ctx, "day", StatusError, time.Second)
	nilMetrics.RecordPanic(ctx, "user")
	nilMetrics.ProviderConnected(ctx, "google")
	nilMetrics.ProviderDisconnected(ctx, "google")
	nilMetrics.RecordToolInvocation(ctx, "session_status", StatusSuccess, time.Second)

	zero := &Metrics{}
	zero.RecordProviderFetch(ctx, "google", OperationBusy, StatusSuccess, "", time.Second)
	zero.RecordPanic(ctx, "user")
}
