// Package cmd implements the command-line interface for freetime.
//
// This package provides the following commands:
//   - free: Show free time across all signed-in calendars (default)
//   - connect, disconnect, status: Manage provider sign-in
//   - panic: Sign out everywhere and wipe session data
//   - views, workhours, colors: Edit stored preferences
//   - serve: Start the MCP server to provide tools for AI assistants
//   - generate-docs: Generate markdown documentation for all MCP tools
//   - version: Display version information
package cmd
