package session

import (
	"context"
	"sync"
	"time"

	"github.com/teemow/freetime/internal/logging"
)

// DefaultInactivityTimeout is how long the session may sit idle before it
// is cleared.
const DefaultInactivityTimeout = 45 * time.Minute

// InactivityGuard runs a callback once no Touch has happened for the
// configured timeout. Every Touch restarts the countdown.
type InactivityGuard struct {
	mu       sync.Mutex
	timeout  time.Duration
	timer    *time.Timer
	onExpire func()
	running  bool
}

// NewInactivityGuard creates a stopped guard. A non-positive timeout uses
// DefaultInactivityTimeout.
func NewInactivityGuard(timeout time.Duration, onExpire func()) *InactivityGuard {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	return &InactivityGuard{timeout: timeout, onExpire: onExpire}
}

// GuardInactivity returns a guard that panics the manager with
// ReasonInactivity when it expires.
func (m *Manager) GuardInactivity(timeout time.Duration) *InactivityGuard {
	return NewInactivityGuard(timeout, func() {
		if err := m.Panic(context.Background(), ReasonInactivity); err != nil {
			m.logger.Error("inactivity reset failed", logging.Err(err))
		}
	})
}

// Timeout returns the idle timeout.
func (g *InactivityGuard) Timeout() time.Duration {
	return g.timeout
}

// Start begins the countdown. Starting a running guard restarts it.
func (g *InactivityGuard) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.running = true
	if g.timer == nil {
		g.timer = time.AfterFunc(g.timeout, g.expire)
		return
	}
	g.timer.Reset(g.timeout)
}

// Touch records activity and restarts the countdown, re-arming it after
// an expiry. It is a no-op on a guard that was never started or was stopped.
func (g *InactivityGuard) Touch() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return
	}
	g.timer.Reset(g.timeout)
}

// Stop cancels the countdown.
func (g *InactivityGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.running = false
	if g.timer != nil {
		g.timer.Stop()
	}
}

func (g *InactivityGuard) expire() {
	g.mu.Lock()
	running := g.running
	g.mu.Unlock()

	if running && g.onExpire != nil {
		g.onExpire()
	}
}
