package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/session"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect [microsoft|google]...",
		Short: "Sign in to calendar providers",
		Long: `Sign in interactively. Microsoft prints a device code to enter in a
browser; Google opens a consent page and waits for the redirect on a
loopback port. Without arguments every configured provider is connected.

The Microsoft token is kept in the session store until you log out of your
desktop session or run 'freetime panic'. The Google token is only kept in
memory, so connecting Google on its own is mostly useful to check the setup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, appOptions{interactive: true})
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := parseProviders(args)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				for _, st := range a.sessions.Status(ctx) {
					sources = append(sources, st.Source)
				}
			}
			if err := connectProviders(ctx, a, sources); err != nil {
				return err
			}
			newRenderer(cmd.OutOrStdout(), a.prefs.Colors(ctx), cfg.Location).Status(a.sessions.Status(ctx))
			return nil
		},
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <microsoft|google>...",
		Short: "Sign out of calendar providers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := parseProviders(args)
			if err != nil {
				return err
			}
			for _, src := range sources {
				if err := a.sessions.Disconnect(ctx, src); err != nil {
					return err
				}
			}
			newRenderer(cmd.OutOrStdout(), a.prefs.Colors(ctx), cfg.Location).Status(a.sessions.Status(ctx))
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which providers are signed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			newRenderer(cmd.OutOrStdout(), a.prefs.Colors(ctx), cfg.Location).Status(a.sessions.Status(ctx))
			return nil
		},
	}
}

func newPanicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "panic",
		Short: "Sign out everywhere and wipe all session data",
		Long: `Sign out of every provider, revoking tokens where the provider supports
it, and delete all session data. Preferences and saved views are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sessions.Panic(ctx, session.ReasonUser); err != nil {
				return fmt.Errorf("session was only partly cleared: %w", err)
			}
			for _, src := range provider.Sources {
				if a.sessions.IsConnected(src) {
					return fmt.Errorf("%s is still signed in after panic", src)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Signed out of all providers and cleared session data."))
			return nil
		},
	}
}
