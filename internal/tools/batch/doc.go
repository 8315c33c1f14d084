// Package batch applies one MCP tool call to several items, such as
// connecting both providers or deleting a list of saved views, and reports
// partial failures per item.
package batch
