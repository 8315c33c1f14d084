// Package views_tools provides MCP tools for saved views and work-hour
// preferences.
package views_tools
