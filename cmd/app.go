package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/freetime/internal/aggregate"
	"github.com/teemow/freetime/internal/calendar"
	"github.com/teemow/freetime/internal/config"
	"github.com/teemow/freetime/internal/google"
	"github.com/teemow/freetime/internal/instrumentation"
	"github.com/teemow/freetime/internal/logging"
	"github.com/teemow/freetime/internal/msgraph"
	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/retry"
	"github.com/teemow/freetime/internal/session"
	"github.com/teemow/freetime/internal/storage"
)

// globalOptions are the persistent root flags.
type globalOptions struct {
	configFile string
	debug      bool
}

var globals globalOptions

// appOptions tweak how much of the application is built.
type appOptions struct {
	// interactive lets token acquisition fall back to a sign-in prompt.
	interactive bool
	// instrument starts the OpenTelemetry provider.
	instrument bool
	// prefsOnly skips identities and adapters for commands that only touch
	// preferences.
	prefsOnly bool
}

// app holds everything one command invocation needs.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	instr   *instrumentation.Provider
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger

	memory     *storage.Memory
	session    *storage.Session
	persistent *storage.Persistent

	sessions *session.Manager
	engine   *aggregate.Orchestrator
	prefs    *prefs.Store
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file and environment. The --debug flag wins
// over the file.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(globals.configFile)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = globals.debug
	}
	return cfg, nil
}

// newApp wires storage, identities, adapters and the orchestrator. Close
// must be called when the command is done.
func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: newLogger(cfg.Debug),
		memory: storage.NewMemory(),
	}
	slog.SetDefault(a.logger)

	persistent, err := storage.OpenPersistent(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}
	a.persistent = persistent
	a.prefs = prefs.New(persistent, a.logger)

	if opts.prefsOnly {
		return a, nil
	}

	if opts.instrument {
		instrConfig := instrumentation.DefaultConfig()
		instrConfig.ServiceVersion = version
		instr, err := instrumentation.NewProvider(ctx, instrConfig)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
		}
		a.instr = instr
		if instr.Enabled() {
			a.metrics = instr.Metrics()
			a.audit = instr.AuditLogger(a.logger)
			a.audit.SetAnonymizer(logging.AnonymizeAccount)
		}
	}

	enc, err := storage.NewEncryption(cfg.SessionKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid session key: %w", err)
	}
	sess, err := storage.NewSession(cfg.SessionDir, enc, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}
	a.session = sess

	a.sessions = session.NewManager(
		session.WithLogger(a.logger),
		session.WithMetrics(a.metrics),
		session.WithAudit(a.audit),
		session.WithStores(a.memory, a.session),
		session.WithInteractiveFallback(opts.interactive),
	)

	adapters, err := a.registerProviders()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = aggregate.New(adapters,
		aggregate.WithLocation(cfg.Location),
		aggregate.WithLogger(a.logger),
		aggregate.WithMetrics(a.metrics),
	)
	a.sessions.OnReset(a.engine.Reset)

	if err := a.sessions.Initialize(ctx); err != nil {
		a.logger.Warn("some sessions could not be restored", logging.Err(err))
	}
	return a, nil
}

// registerProviders registers an identity and builds an adapter for every
// provider with a configured client ID.
func (a *app) registerProviders() ([]provider.Adapter, error) {
	httpClient := &http.Client{Timeout: a.cfg.HTTPTimeout}
	var adapters []provider.Adapter

	if a.cfg.Microsoft.Enabled() {
		a.sessions.Register(provider.Microsoft, msgraph.NewIdentity(msgraph.IdentityConfig{
			ClientID: a.cfg.Microsoft.ClientID,
			TenantID: a.cfg.Microsoft.TenantID,
			Prompt:   msgraph.StderrPrompt(os.Stderr),
			Logger:   a.logger,
		}, a.session))

		opts := []msgraph.Option{
			msgraph.WithHTTPClient(httpClient),
			msgraph.WithRetryPolicy(a.retryPolicy(provider.Microsoft)),
			msgraph.WithLocation(a.cfg.Location),
			msgraph.WithLogger(a.logger),
		}
		if a.cfg.Microsoft.GraphURL != "" {
			opts = append(opts, msgraph.WithBaseURL(a.cfg.Microsoft.GraphURL))
		}
		adapters = append(adapters, msgraph.NewClient(a.sessions, opts...))
	}

	if a.cfg.Google.Enabled() {
		a.sessions.Register(provider.Google, google.NewIdentity(google.IdentityConfig{
			ClientID:     a.cfg.Google.ClientID,
			ClientSecret: a.cfg.Google.ClientSecret,
			HTTPClient:   httpClient,
			ListenAddr:   a.cfg.Google.ListenAddr,
			Open:         google.StderrOpener(os.Stderr),
			Logger:       a.logger,
		}, a.memory))

		adapters = append(adapters, calendar.NewClient(a.sessions,
			calendar.WithCalendarID(a.cfg.Google.CalendarID),
			calendar.WithHTTPClient(httpClient),
			calendar.WithRetryPolicy(a.retryPolicy(provider.Google)),
			calendar.WithLocation(a.cfg.Location),
			calendar.WithLogger(a.logger),
		))
	}

	if len(adapters) == 0 {
		where := "the config file"
		if path, err := config.DefaultConfigFile(); err == nil {
			where = path
		}
		return nil, fmt.Errorf("no calendar provider configured: set microsoft.client_id or google.client_id "+
			"in %s or via FREETIME_MICROSOFT_CLIENT_ID / FREETIME_GOOGLE_CLIENT_ID", where)
	}
	return adapters, nil
}

// retryPolicy returns a fresh policy per provider so throttling waits are
// logged and counted under the right label.
func (a *app) retryPolicy(src provider.Source) *retry.Policy {
	p := a.cfg.Retry.Policy()
	logger := logging.WithProvider(a.logger, string(src))
	p.Notify = func(attempt, status int, wait time.Duration) {
		logger.Debug("throttled, backing off",
			slog.Int("status", status),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait))
		a.metrics.RecordRetry(context.Background(), string(src), status)
	}
	return p
}

// Close releases storage and flushes instrumentation. The session store
// stays on disk for the next run.
func (a *app) Close() {
	if a.instr != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.instr.Shutdown(shutdownCtx); err != nil {
			a.logger.Debug("instrumentation shutdown failed", logging.Err(err))
		}
	}
	if a.persistent != nil {
		if err := a.persistent.Close(); err != nil {
			a.logger.Warn("closing preferences failed", logging.Err(err))
		}
	}
}
