package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/freetime/internal/config"
	"github.com/teemow/freetime/internal/logging"
	"github.com/teemow/freetime/internal/resources"
	"github.com/teemow/freetime/internal/server"
	"github.com/teemow/freetime/internal/session"
	"github.com/teemow/freetime/internal/tools/availability_tools"
	"github.com/teemow/freetime/internal/tools/session_tools"
	"github.com/teemow/freetime/internal/tools/views_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server
	Enabled bool

	// Addr is the address for the metrics server (e.g., "127.0.0.1:9090")
	Addr string
}

func newServeCmd() *cobra.Command {
	var (
		metricsEnabled    bool
		metricsAddr       string
		inactivityTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server on stdin/stdout so an AI
assistant can query your availability.

Sign-in prompts (device codes, consent URLs) are printed on stderr. After
--inactivity-timeout without a tool call every provider is signed out and
all session data is wiped, exactly like 'freetime panic'.

Metrics:
  With --metrics-enabled, Prometheus metrics and health probes are served
  on --metrics-addr (loopback by default). Exporters are configured with
  METRICS_EXPORTER, TRACING_EXPORTER and the OTEL_* environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("inactivity-timeout") {
				cfg.InactivityTimeout = inactivityTimeout
			}
			if !cmd.Flags().Changed("metrics-enabled") && os.Getenv("METRICS_ENABLED") == "true" {
				metricsEnabled = true
			}
			if !cmd.Flags().Changed("metrics-addr") {
				if addr := os.Getenv("METRICS_ADDR"); addr != "" {
					metricsAddr = addr
				}
			}
			return runServe(cmd.Context(), cfg, MetricsConfig{Enabled: metricsEnabled, Addr: metricsAddr})
		},
	}

	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", false, "Serve metrics and health probes on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
	cmd.Flags().DurationVar(&inactivityTimeout, "inactivity-timeout", session.DefaultInactivityTimeout, "Wipe all sessions after this long without a tool call")

	return cmd
}

func runServe(ctx context.Context, cfg config.Config, metricsConfig MetricsConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(shutdownCtx, cfg, appOptions{interactive: true, instrument: true})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	guard := a.sessions.GuardInactivity(cfg.InactivityTimeout)
	serverContext := server.NewServerContext(shutdownCtx, a.sessions, a.engine, a.prefs,
		server.WithLocation(cfg.Location),
		server.WithLogger(logger),
		server.WithMetrics(a.metrics),
		server.WithAuditLogger(a.audit),
		server.WithInactivityGuard(guard),
	)
	defer func() {
		_ = serverContext.Shutdown()
	}()

	health := server.NewHealthChecker(serverContext)

	// Start metrics server if enabled
	var metricsServer *server.MetricsServer
	if metricsConfig.Enabled && a.instr != nil && a.instr.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    metricsConfig.Addr,
			InstrumentationProvider: a.instr,
			Health:                  health,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		metricsErr := make(chan error, 1)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				metricsErr <- err
			}
			close(metricsErr)
		}()

		// Give a failing bind a moment to surface before serving tools
		select {
		case err := <-metricsErr:
			if err != nil {
				return fmt.Errorf("metrics server failed to start: %w", err)
			}
		case <-time.After(200 * time.Millisecond):
		}

		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := metricsServer.Shutdown(stopCtx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	mcpSrv := mcpserver.NewMCPServer("freetime", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	guard.Start()
	health.SetReady(true)
	logger.Info("serving MCP over stdio", "inactivity_timeout", guard.Timeout())

	return runStdioServer(shutdownCtx, mcpSrv)
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
	case <-ctx.Done():
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, ctx *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Availability tools",
			register: func() error {
				return availability_tools.RegisterAvailabilityTools(mcpSrv, ctx)
			},
		},
		{
			name: "Session tools",
			register: func() error {
				return session_tools.RegisterSessionTools(mcpSrv, ctx)
			},
		},
		{
			name: "Views tools",
			register: func() error {
				return views_tools.RegisterViewsTools(mcpSrv, ctx)
			},
		},
		{
			name: "User Resources",
			register: func() error {
				return resources.RegisterUserResources(mcpSrv, ctx)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}
