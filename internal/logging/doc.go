// Package logging provides structured logging utilities for freetime.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithProvider(slog.Default(), "google")
//	logger.Info("busy fetch complete",
//	    logging.Status("success"))
//
// # Security Considerations
//
// Calendar content never reaches the logs:
//   - Only period bounds, provider names and counts are logged
//   - Account names are hashed to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly, only their length via SanitizeToken
package logging
