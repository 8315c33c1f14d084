// Package common provides shared helpers for the MCP tool packages:
// argument parsing, JSON results and the instrumented handler wrapper that
// every tool is registered through.
package common
