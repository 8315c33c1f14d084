package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/freetime/internal/instrumentation"
	"github.com/teemow/freetime/internal/logging"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/storage"
)

// Reasons passed to Panic.
const (
	ReasonUser       = "user"
	ReasonInactivity = "inactivity"
)

// ErrReset is the cause of a sign-in that a panic or reset overtook. The
// token it produced has been discarded.
var ErrReset = errors.New("session was reset during sign-in")

// Identity is the capability a provider's sign-in library exposes. The
// manager never depends on a concrete OAuth client.
type Identity interface {
	Initialize(ctx context.Context) error
	ActiveAccount(ctx context.Context) (provider.Account, bool)
	AcquireTokenSilent(ctx context.Context) (string, error)
	AcquireTokenInteractive(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

// ProviderStatus is a point-in-time view of one provider's session.
type ProviderStatus struct {
	Source    provider.Source `json:"provider"`
	State     State           `json:"state"`
	Username  string          `json:"username,omitempty"`
	LastError string          `json:"lastError,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics records auth attempts, connection changes and panics.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithAudit writes session lifecycle events to the audit log.
func WithAudit(audit *instrumentation.AuditLogger) Option {
	return func(m *Manager) { m.audit = audit }
}

// WithStores registers the stores wiped on panic, typically the memory and
// session stores. The long-lived preferences store is never passed here.
func WithStores(stores ...storage.Store) Option {
	return func(m *Manager) { m.stores = append(m.stores, stores...) }
}

// WithInteractiveFallback controls whether AccessToken may fall back to an
// interactive sign-in when silent acquisition fails. Enabled by default.
func WithInteractiveFallback(enabled bool) Option {
	return func(m *Manager) { m.interactive = enabled }
}

// Manager owns the per-provider session state machine and hands out bearer
// tokens to the adapters. It implements provider.TokenSource.
type Manager struct {
	mu         sync.Mutex
	identities map[provider.Source]Identity
	order      []provider.Source
	states     map[provider.Source]State
	lastErr    map[provider.Source]error
	acquire    map[provider.Source]*sync.Mutex
	hooks      []func(ctx context.Context)

	// epoch counts resets. Acquisitions started under an older epoch may
	// not change state, and resetCtx is cancelled when it moves on.
	epoch       uint64
	resetCtx    context.Context
	cancelReset context.CancelCauseFunc

	// resetMu serializes Panic and ResetAll.
	resetMu sync.Mutex

	stores      []storage.Store
	interactive bool
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	audit       *instrumentation.AuditLogger
}

// NewManager creates a Manager with no providers registered.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		identities:  make(map[provider.Source]Identity),
		states:      make(map[provider.Source]State),
		lastErr:     make(map[provider.Source]error),
		acquire:     make(map[provider.Source]*sync.Mutex),
		interactive: true,
		logger:      slog.Default(),
	}
	m.resetCtx, m.cancelReset = context.WithCancelCause(context.Background())
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithOperation(m.logger, "session")
	return m
}

// Register adds the identity for a provider. Registering a source twice
// replaces the previous identity.
func (m *Manager) Register(src provider.Source, id Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[src]; !ok {
		m.order = append(m.order, src)
		m.acquire[src] = &sync.Mutex{}
	}
	m.identities[src] = id
	m.states[src] = Disconnected
}

// OnReset registers a hook run by ResetAll after state has been cleared.
func (m *Manager) OnReset(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Initialize lets every identity restore what its storage still holds. A
// provider whose account survives is Connected.
func (m *Manager) Initialize(ctx context.Context) error {
	var errs []error
	for _, src := range m.sources() {
		id := m.identity(src)
		if err := id.Initialize(ctx); err != nil {
			errs = append(errs, fmt.Errorf("initializing %s: %w", src, err))
			continue
		}
		if account, ok := id.ActiveAccount(ctx); ok {
			m.setState(ctx, src, Connected, nil)
			m.logger.Debug("restored session", logging.Provider(string(src)), logging.Account(account.Username))
		}
	}
	return errors.Join(errs...)
}

// State returns the provider's current state.
func (m *Manager) State(src provider.Source) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[src]
}

// IsConnected reports whether the provider is Connected.
func (m *Manager) IsConnected(src provider.Source) bool {
	return m.State(src) == Connected
}

// Status returns the state of every registered provider in registration order.
func (m *Manager) Status(ctx context.Context) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(m.order))
	for _, src := range m.sources() {
		st := ProviderStatus{Source: src}
		if account, ok := m.identity(src).ActiveAccount(ctx); ok {
			st.Username = account.Username
		}
		m.mu.Lock()
		st.State = m.states[src]
		if err := m.lastErr[src]; err != nil {
			st.LastError = err.Error()
		}
		m.mu.Unlock()
		out = append(out, st)
	}
	return out
}

// Connect runs the interactive sign-in for a provider. It moves the
// provider to Authenticating and then to Connected, or back to
// Disconnected with an *provider.AuthError.
func (m *Manager) Connect(ctx context.Context, src provider.Source) error {
	id := m.identity(src)
	if id == nil {
		return fmt.Errorf("provider %s is not configured", src)
	}
	if m.IsConnected(src) {
		return nil
	}

	lock := m.acquireLock(src)
	lock.Lock()
	defer lock.Unlock()

	acqCtx, done, epoch := m.beginAcquire(ctx)
	defer done()
	_, err := m.interactiveToken(ctx, acqCtx, epoch, src, id)

	event := instrumentation.NewSessionEvent(instrumentation.EventConnect, string(src)).
		WithSpanContext(ctx).
		WithError(err)
	if account, ok := id.ActiveAccount(ctx); ok {
		event.WithUser(account.Username)
	}
	m.audit.Log(ctx, event)

	return err
}

// Disconnect signs a single provider out and forgets its token.
func (m *Manager) Disconnect(ctx context.Context, src provider.Source) error {
	id := m.identity(src)
	if id == nil {
		return fmt.Errorf("provider %s is not configured", src)
	}

	event := instrumentation.NewSessionEvent(instrumentation.EventDisconnect, string(src)).WithSpanContext(ctx)
	if account, ok := id.ActiveAccount(ctx); ok {
		event.WithUser(account.Username)
	}

	err := id.Logout(ctx)
	m.setState(ctx, src, Disconnected, nil)
	m.audit.Log(ctx, event.WithError(err))
	if err != nil {
		m.logger.Warn("logout reported an error", logging.Provider(string(src)), logging.Err(err))
	}
	return nil
}

// AccessToken returns a bearer token for the provider. It tries silent
// acquisition first and falls back to the interactive flow. An empty token
// with a nil error means no account is established and the provider must
// be skipped. When both paths fail the provider is Disconnected and an
// *provider.AuthError is returned.
func (m *Manager) AccessToken(ctx context.Context, src provider.Source) (string, error) {
	id := m.identity(src)
	if id == nil {
		return "", nil
	}

	lock := m.acquireLock(src)
	lock.Lock()
	defer lock.Unlock()

	label := instrumentation.ProviderLabel(src)
	if _, ok := id.ActiveAccount(ctx); !ok {
		m.metrics.RecordAuth(ctx, label, instrumentation.AuthModeSilent, instrumentation.AuthResultNone)
		m.setState(ctx, src, Disconnected, nil)
		return "", nil
	}

	acqCtx, done, epoch := m.beginAcquire(ctx)
	defer done()

	token, err := id.AcquireTokenSilent(acqCtx)
	if err == nil && token != "" {
		m.metrics.RecordAuth(ctx, label, instrumentation.AuthModeSilent, instrumentation.AuthResultSuccess)
		if !m.transition(ctx, src, Connected, nil, &epoch) {
			return m.discard(ctx, src, id)
		}
		return token, nil
	}
	m.metrics.RecordAuth(ctx, label, instrumentation.AuthModeSilent, instrumentation.AuthResultFailure)
	if m.superseded(epoch) {
		return m.discard(ctx, src, id)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	m.logger.Info("silent token acquisition failed",
		logging.Provider(string(src)),
		slog.Bool("interaction_required", provider.IsInteractionRequired(err)),
		logging.Err(err))

	if !m.interactive {
		if err == nil {
			err = errors.New("empty access token")
		}
		authErr := &provider.AuthError{Source: src, Err: err}
		m.setState(ctx, src, Disconnected, authErr)
		return "", authErr
	}

	return m.interactiveToken(ctx, acqCtx, epoch, src, id)
}

// interactiveToken must be called with the provider's acquire lock held.
// The flow runs on acqCtx, which a reset cancels; state changes are only
// applied while epoch is still current.
func (m *Manager) interactiveToken(ctx, acqCtx context.Context, epoch uint64, src provider.Source, id Identity) (string, error) {
	label := instrumentation.ProviderLabel(src)
	if !m.transition(ctx, src, Authenticating, nil, &epoch) {
		return m.discard(ctx, src, id)
	}

	token, err := id.AcquireTokenInteractive(acqCtx)
	if err == nil && token == "" {
		err = errors.New("empty access token")
	}
	if err != nil {
		m.metrics.RecordAuth(ctx, label, instrumentation.AuthModeInteractive, instrumentation.AuthResultFailure)
		authErr := &provider.AuthError{Source: src, Err: err}
		if !m.transition(ctx, src, Disconnected, authErr, &epoch) {
			return m.discard(ctx, src, id)
		}
		m.logger.Warn("interactive sign-in failed", logging.Provider(string(src)), logging.Err(err))
		return "", authErr
	}

	m.metrics.RecordAuth(ctx, label, instrumentation.AuthModeInteractive, instrumentation.AuthResultSuccess)
	if !m.transition(ctx, src, Connected, nil, &epoch) {
		return m.discard(ctx, src, id)
	}
	return token, nil
}

// beginAcquire derives the context a token acquisition runs on. It is
// cancelled by the caller's context or by the next reset, whichever comes
// first. done must be called when the acquisition returns.
func (m *Manager) beginAcquire(ctx context.Context) (context.Context, func(), uint64) {
	m.mu.Lock()
	epoch := m.epoch
	resetCtx := m.resetCtx
	m.mu.Unlock()

	acqCtx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(resetCtx, func() { cancel(ErrReset) })
	return acqCtx, func() {
		stop()
		cancel(nil)
	}, epoch
}

// supersede starts a new epoch and cancels every acquisition still running
// under the old one.
func (m *Manager) supersede() {
	m.mu.Lock()
	m.epoch++
	cancel := m.cancelReset
	m.resetCtx, m.cancelReset = context.WithCancelCause(context.Background())
	m.mu.Unlock()
	cancel(ErrReset)
}

func (m *Manager) superseded(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch != epoch
}

// discard throws away whatever a sign-in overtaken by a reset left in the
// identity's storage and leaves the provider Disconnected.
func (m *Manager) discard(ctx context.Context, src provider.Source, id Identity) (string, error) {
	if err := id.Logout(context.WithoutCancel(ctx)); err != nil {
		m.logger.Debug("discarding stale sign-in failed", logging.Provider(string(src)), logging.Err(err))
	}
	m.setState(ctx, src, Disconnected, nil)
	m.logger.Info("sign-in overtaken by a session reset, token discarded", logging.Provider(string(src)))
	return "", &provider.AuthError{Source: src, Err: ErrReset}
}

// Panic signs every provider out, revoking tokens where the provider
// supports it, and then runs ResetAll. Revocation failures are logged and
// swallowed: the reset clears local state regardless.
func (m *Manager) Panic(ctx context.Context, reason string) error {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()
	m.supersede()

	m.logger.Warn("panic: clearing all sessions", slog.String("reason", reason))
	m.metrics.RecordPanic(ctx, reason)

	eventName := instrumentation.EventPanic
	if reason == ReasonInactivity {
		eventName = instrumentation.EventTimeout
	}

	for _, src := range m.sources() {
		id := m.identity(src)
		event := instrumentation.NewSessionEvent(eventName, string(src)).WithReason(reason).WithSpanContext(ctx)
		if account, ok := id.ActiveAccount(ctx); ok {
			event.WithUser(account.Username)
		}
		err := id.Logout(ctx)
		if err != nil {
			m.logger.Debug("logout during panic failed", logging.Provider(string(src)), logging.Err(err))
		}
		m.audit.Log(ctx, event.WithError(err))
	}

	return m.resetAll(ctx)
}

// ResetAll clears every owned store and per-provider state, runs the reset
// hooks and re-initializes the identities. It does not revoke tokens.
func (m *Manager) ResetAll(ctx context.Context) error {
	m.resetMu.Lock()
	defer m.resetMu.Unlock()
	m.supersede()
	return m.resetAll(ctx)
}

func (m *Manager) resetAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clearing %s storage: %w", s.Lifetime(), err))
		}
	}

	for _, src := range m.sources() {
		m.setState(ctx, src, Disconnected, nil)
	}

	m.mu.Lock()
	hooks := append([]func(context.Context){}, m.hooks...)
	m.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx)
	}

	if err := m.Initialize(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Manager) setState(ctx context.Context, src provider.Source, next State, err error) {
	m.transition(ctx, src, next, err, nil)
}

// transition moves src to next. With a non-nil epoch the move is refused,
// and false returned, once a reset has started a newer epoch.
func (m *Manager) transition(ctx context.Context, src provider.Source, next State, err error, epoch *uint64) bool {
	m.mu.Lock()
	if epoch != nil && *epoch != m.epoch {
		m.mu.Unlock()
		return false
	}
	prev := m.states[src]
	m.states[src] = next
	if err != nil || next == Connected || next == Disconnected {
		m.lastErr[src] = err
	}
	m.mu.Unlock()

	if prev == next {
		return true
	}
	label := instrumentation.ProviderLabel(src)
	if next == Connected {
		m.metrics.ProviderConnected(ctx, label)
	} else if prev == Connected {
		m.metrics.ProviderDisconnected(ctx, label)
	}
	m.logger.Debug("session state changed",
		logging.Provider(string(src)),
		slog.String("from", prev.String()),
		slog.String("to", next.String()))
	return true
}

func (m *Manager) identity(src provider.Source) Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identities[src]
}

func (m *Manager) acquireLock(src provider.Source) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquire[src]
}

func (m *Manager) sources() []provider.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.Source(nil), m.order...)
}
