package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation  = "operation"
	KeyProvider   = "provider"
	KeyAccount    = "account_hash"
	KeyDuration   = "duration"
	KeyStatus     = "status"
	KeyError      = "error"
	KeyTool       = "tool"
	KeyPeriod     = "period"
	KeyGeneration = "generation"
)

// Status values for consistent logging. They mirror the instrumentation
// status labels so log lines and metrics can be joined.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithProvider returns a logger with the provider attribute set.
func WithProvider(logger *slog.Logger, provider string) *slog.Logger {
	return logger.With(slog.String(KeyProvider, provider))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Provider returns a slog attribute for the calendar provider.
func Provider(p string) slog.Attr {
	return slog.String(KeyProvider, p)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Period returns a slog attribute describing a fetch window.
// Only the bounds are logged, never calendar content.
func Period(start, end fmt.Stringer) slog.Attr {
	return slog.Group(KeyPeriod,
		slog.String("start", start.String()),
		slog.String("end", end.String()),
	)
}

// Generation returns a slog attribute for a refresh generation number.
func Generation(gen uint64) slog.Attr {
	return slog.Uint64(KeyGeneration, gen)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
// This allows safely passing Err(maybeNilErr) without adding empty attributes.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeAccount returns a hashed representation of an account name for logging.
// This allows correlation of log entries without exposing PII.
func AnonymizeAccount(account string) string {
	if account == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(account))
	return "account:" + hex.EncodeToString(hash[:8])
}

// Account returns a slog attribute with the anonymized account name.
func Account(account string) slog.Attr {
	return slog.String(KeyAccount, AnonymizeAccount(account))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes (like JWT headers) can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
