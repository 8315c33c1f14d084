// Package storage provides the three key-value lifetime classes used by
// freetime:
//
//   - Memory: process memory only, gone when the process exits.
//   - Session: files under the per-user runtime directory, removed on panic
//     and by the OS at logout. Optionally AES-256-GCM encrypted.
//   - Persistent: a SQLite database under the user's state directory,
//     holding preferences and saved views. Never calendar content.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Lifetime names a storage class.
type Lifetime string

const (
	LifetimeMemory     Lifetime = "memory"
	LifetimeSession    Lifetime = "session"
	LifetimePersistent Lifetime = "persistent"
)

// Store is a string key-value store of one lifetime class.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key.
	Clear(ctx context.Context) error
	Lifetime() Lifetime
}
