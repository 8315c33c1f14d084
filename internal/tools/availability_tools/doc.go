// Package availability_tools exposes the aggregation engine as the
// availability_get MCP tool.
//
// Every call runs a fresh refresh across all connected providers. Nothing is
// cached between calls except the orchestrator's last snapshot, which lives
// in process memory and is dropped by session_panic.
package availability_tools
