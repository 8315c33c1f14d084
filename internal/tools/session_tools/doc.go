// Package session_tools exposes the provider sign-in lifecycle over MCP:
// status, connect, disconnect and panic.
package session_tools
