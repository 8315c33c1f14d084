package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/freetime/internal/aggregate"
	"github.com/teemow/freetime/internal/instrumentation"
	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/session"
)

// ErrShutdown is returned by Touch after the server context was shut down.
var ErrShutdown = errors.New("server is shutting down")

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithLocation sets the zone used to interpret dates in tool arguments.
func WithLocation(loc *time.Location) Option {
	return func(sc *ServerContext) { sc.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = logger }
}

// WithMetrics sets the metrics recorder used by the tool handlers.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = metrics }
}

// WithAuditLogger sets the session audit logger.
func WithAuditLogger(audit *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.audit = audit }
}

// WithInactivityGuard sets the guard every tool call touches.
func WithInactivityGuard(guard *session.InactivityGuard) Option {
	return func(sc *ServerContext) { sc.guard = guard }
}

// ServerContext holds the engine components shared by all MCP tools.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	sessions *session.Manager
	engine   *aggregate.Orchestrator
	prefs    *prefs.Store
	guard    *session.InactivityGuard
	metrics  *instrumentation.Metrics
	audit    *instrumentation.AuditLogger
	loc      *time.Location
	logger   *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context over the session manager,
// the orchestrator and the preferences store.
func NewServerContext(ctx context.Context, sessions *session.Manager, engine *aggregate.Orchestrator, store *prefs.Store, opts ...Option) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		sessions: sessions,
		engine:   engine,
		prefs:    store,
		loc:      time.Local,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.loc == nil {
		sc.loc = time.Local
	}
	return sc
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Sessions returns the session manager.
func (sc *ServerContext) Sessions() *session.Manager {
	return sc.sessions
}

// Engine returns the aggregation orchestrator.
func (sc *ServerContext) Engine() *aggregate.Orchestrator {
	return sc.engine
}

// Prefs returns the preferences store.
func (sc *ServerContext) Prefs() *prefs.Store {
	return sc.prefs
}

// Location returns the zone dates are interpreted in.
func (sc *ServerContext) Location() *time.Location {
	return sc.loc
}

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, which may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.audit
}

// Touch records user activity and restarts the inactivity countdown.
func (sc *ServerContext) Touch() error {
	if sc.IsShutdown() {
		return ErrShutdown
	}
	if sc.guard != nil {
		sc.guard.Touch()
	}
	return nil
}

// IsShutdown returns whether the server has been shut down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown stops the inactivity guard and cancels the server context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	if sc.guard != nil {
		sc.guard.Stop()
	}
	sc.cancel()
	return nil
}
