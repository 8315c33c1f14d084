package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/teemow/freetime/internal/logging"
)

// Session stores one file per key in a private directory, normally under
// $XDG_RUNTIME_DIR, which the OS removes when the user logs out.
type Session struct {
	mu     sync.Mutex
	dir    string
	enc    *Encryption
	logger *slog.Logger
}

// DefaultSessionDir returns $XDG_RUNTIME_DIR/freetime, falling back to a
// per-user directory under the system temp dir.
func DefaultSessionDir() string {
	if runtime := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtime != "" {
		return filepath.Join(runtime, "freetime")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("freetime-%d", os.Getuid()))
}

// NewSession creates a session store in dir. enc may be nil.
func NewSession(dir string, enc *Encryption, logger *slog.Logger) (*Session, error) {
	if dir == "" {
		dir = DefaultSessionDir()
	}
	if enc == nil {
		enc = &Encryption{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &Session{dir: dir, enc: enc, logger: logger}, nil
}

// Dir returns the backing directory.
func (s *Session) Dir() string {
	return s.dir
}

// path maps a key to a file name that cannot escape the directory.
func (s *Session) path(key string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key))+".val")
}

// Get implements Store. A value that cannot be decrypted, for example one
// written under a different key, is removed and reported as missing.
func (s *Session) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading session value: %w", err)
	}

	value, err := s.enc.Decrypt(string(data))
	if err != nil {
		s.logger.Warn("discarding unreadable session value", logging.Err(err))
		_ = os.Remove(s.path(key))
		return "", ErrNotFound
	}
	return value, nil
}

// Set implements Store. Writes go through a temp file and rename.
func (s *Session) Set(_ context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}

	sealed, err := s.enc.Encrypt(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("writing session value: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming session value: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *Session) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting session value: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *Session) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("listing session directory: %w", err)
	}

	var firstErr error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("removing session value: %w", err)
		}
	}
	return firstErr
}

// Lifetime implements Store.
func (s *Session) Lifetime() Lifetime {
	return LifetimeSession
}
