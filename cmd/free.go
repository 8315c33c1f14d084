package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/freetime/internal/aggregate"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/provider"
)

func newFreeCmd() *cobra.Command {
	var (
		date      string
		week      bool
		details   bool
		minGap    int
		connect   []string
		savedView string
	)

	cmd := &cobra.Command{
		Use:   "free",
		Short: "Show free time across your calendars",
		Long: `Fetch busy time from every signed-in calendar provider, merge it and
print the free slots inside your work hours.

Providers that are not signed in contribute nothing. Use --connect to sign
in first; Microsoft stays signed in for the rest of your desktop session,
Google only for this run.`,
		Example: `  freetime free
  freetime free --week --date 2024-03-04
  freetime free --connect google,microsoft --details
  freetime free --view "team week"`,
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

			sources, err := parseProviders(connect)
			if err != nil {
				return err
			}
			if err := connectProviders(ctx, a, sources); err != nil {
				return err
			}

			q := aggregate.Query{Date: date, SavedView: savedView}
			if week {
				q.View = string(period.Week)
			}
			if cmd.Flags().Changed("details") {
				q.Details = &details
			}
			if cmd.Flags().Changed("min-gap") {
				q.MinGapMinutes = &minGap
			}

			req, err := aggregate.BuildRequest(ctx, a.prefs, q, cfg.Location)
			if err != nil {
				return err
			}
			snap, err := a.engine.Refresh(ctx, req)
			if err != nil {
				return err
			}

			newRenderer(cmd.OutOrStdout(), a.prefs.Colors(ctx), cfg.Location).Snapshot(snap, req.WorkHours)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date to show as YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&week, "week", false, "Show the Monday-to-Sunday week containing the date")
	cmd.Flags().BoolVar(&details, "details", false, "Also list event titles; private events are redacted")
	cmd.Flags().IntVar(&minGap, "min-gap", 0, "Shortest free slot to show, in minutes (default: stored preference)")
	cmd.Flags().StringSliceVar(&connect, "connect", nil, "Sign in to these providers before fetching (microsoft, google)")
	cmd.Flags().StringVar(&savedView, "view", "", "Use a saved view by name or ID; other flags override it")

	return cmd
}

// parseProviders resolves provider names, dropping duplicates.
func parseProviders(names []string) ([]provider.Source, error) {
	seen := make(map[provider.Source]bool, len(names))
	var out []provider.Source
	for _, name := range names {
		src, err := provider.ParseSource(name)
		if err != nil {
			return nil, err
		}
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	return out, nil
}

// connectProviders signs in to every source that is not connected yet.
func connectProviders(ctx context.Context, a *app, sources []provider.Source) error {
	for _, src := range sources {
		if a.sessions.IsConnected(src) {
			continue
		}
		fmt.Fprintf(os.Stderr, "Signing in to %s...\n", src)
		if err := a.sessions.Connect(ctx, src); err != nil {
			return fmt.Errorf("failed to connect %s: %w", src, err)
		}
	}
	return nil
}
