// Package resources provides MCP resources for exposing session and
// preference data. Resources are read-only data sources that MCP clients can
// fetch without calling a tool. Reading one counts as activity for the
// inactivity timer.
package resources
