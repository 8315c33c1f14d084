// Package server provides the shared state behind the local MCP server and
// the optional loopback HTTP server for metrics and health probes.
//
// # Key Components
//
// ServerContext bundles the session manager, the aggregation orchestrator,
// the preferences store and the inactivity guard. Every tool call goes
// through Touch, which restarts the inactivity countdown.
//
// MetricsServer exposes /metrics through promhttp together with the
// HealthChecker endpoints:
//   - /healthz: liveness
//   - /readyz: readiness, false while shutting down
//   - /healthz/detailed: uptime and per-provider session state
//
// Nothing here accepts remote sign-ins or stores calendar data. The MCP
// transport is stdio only.
package server
