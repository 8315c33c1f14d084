package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/provider"
)

// runPrefs opens only the preferences store and hands it to fn.
func runPrefs(cmd *cobra.Command, fn func(a *app, r *renderer) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, appOptions{prefsOnly: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a, newRenderer(cmd.OutOrStdout(), a.prefs.Colors(cmd.Context()), cfg.Location))
}

func newViewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Manage saved views",
	}
	cmd.AddCommand(newViewsListCmd(), newViewsSaveCmd(), newViewsDeleteCmd())
	return cmd
}

func newViewsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefs(cmd, func(a *app, r *renderer) error {
				r.Views(a.prefs.SavedViews(cmd.Context()))
				return nil
			})
		},
	}
}

func newViewsSaveCmd() *cobra.Command {
	var (
		date      string
		week      bool
		details   bool
		minGap    int
		workStart int
		workEnd   int
	)

	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a view; an existing view with the same name is replaced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefs(cmd, func(a *app, r *renderer) error {
				ctx := cmd.Context()
				v := prefs.SavedView{
					Name:          args[0],
					Date:          date,
					View:          string(period.Day),
					Details:       details,
				}
				if cmd.Flags().Changed("min-gap") {
					v.MinGapMinutes = &minGap
				}
				if week {
					v.View = string(period.Week)
				}
				if cmd.Flags().Changed("work-start") || cmd.Flags().Changed("work-end") {
					h := a.prefs.WorkHours(ctx).Uniform
					if cmd.Flags().Changed("work-start") {
						h = h.SetStart(workStart)
					}
					if cmd.Flags().Changed("work-end") {
						h = h.SetEnd(workEnd)
					}
					wh := prefs.UniformWorkHours(h.Start, h.End)
					v.WorkHours = &wh
				}

				saved, err := a.prefs.SaveView(ctx, v)
				if err != nil {
					return err
				}
				r.Views([]prefs.SavedView{saved})
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Fixed date YYYY-MM-DD (default: always today)")
	cmd.Flags().BoolVar(&week, "week", false, "Show the whole week")
	cmd.Flags().BoolVar(&details, "details", false, "Include event titles")
	cmd.Flags().IntVar(&minGap, "min-gap", 0, "Shortest free slot in minutes (default: stored preference)")
	cmd.Flags().IntVar(&workStart, "work-start", prefs.DefaultStartHour, "Work start hour for this view")
	cmd.Flags().IntVar(&workEnd, "work-end", prefs.DefaultEndHour, "Work end hour for this view")

	return cmd
}

func newViewsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name|id>...",
		Short: "Delete saved views",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefs(cmd, func(a *app, r *renderer) error {
				var errs []error
				for _, ref := range args {
					if err := a.prefs.DeleteView(cmd.Context(), ref); err != nil {
						errs = append(errs, err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", ref)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func newWorkHoursCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workhours",
		Short: "Show or change work hours",
	}
	cmd.AddCommand(newWorkHoursShowCmd(), newWorkHoursSetCmd())
	return cmd
}

func newWorkHoursShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show work hours per weekday",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefs(cmd, func(a *app, r *renderer) error {
				r.WorkHours(a.prefs.WorkHours(cmd.Context()), a.prefs.MinGapMinutes(cmd.Context()))
				return nil
			})
		},
	}
}

func newWorkHoursSetCmd() *cobra.Command {
	var (
		start  int
		end    int
		day    string
		minGap int
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change work hours for every day or a single weekday",
		Long: `Change work hours. Without --day the range applies to every weekday and
replaces any per-day ranges. A bound that crosses the other drags it along.`,
		Example: `  freetime workhours set --start 8 --end 16
  freetime workhours set --day friday --end 12
  freetime workhours set --min-gap 15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hasStart := cmd.Flags().Changed("start")
			hasEnd := cmd.Flags().Changed("end")
			hasMinGap := cmd.Flags().Changed("min-gap")
			if !hasStart && !hasEnd && !hasMinGap {
				return errors.New("nothing to change: pass --start, --end or --min-gap")
			}

			return runPrefs(cmd, func(a *app, r *renderer) error {
				ctx := cmd.Context()
				if hasStart || hasEnd {
					wh := a.prefs.WorkHours(ctx)
					apply := func(h prefs.Hours) prefs.Hours {
						if hasStart {
							h = h.SetStart(start)
						}
						if hasEnd {
							h = h.SetEnd(end)
						}
						return h
					}
					if day != "" {
						wd, err := prefs.ParseWeekday(day)
						if err != nil {
							return err
						}
						wh = wh.SetDay(wd, apply(wh.For(wd)))
					} else {
						h := apply(wh.Uniform)
						wh = prefs.UniformWorkHours(h.Start, h.End)
					}
					if err := a.prefs.SetWorkHours(ctx, wh); err != nil {
						return err
					}
				}
				if hasMinGap {
					if err := a.prefs.SetMinGapMinutes(ctx, minGap); err != nil {
						return err
					}
				}
				r.WorkHours(a.prefs.WorkHours(ctx), a.prefs.MinGapMinutes(ctx))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&start, "start", prefs.DefaultStartHour, "Start hour 0-23")
	cmd.Flags().IntVar(&end, "end", prefs.DefaultEndHour, "End hour 0-23")
	cmd.Flags().StringVar(&day, "day", "", "Only change this weekday, e.g. friday")
	cmd.Flags().IntVar(&minGap, "min-gap", prefs.DefaultMinGapMinutes, "Shortest free slot to show, in minutes")

	return cmd
}

func newColorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "colors [provider color]",
		Short: "Show or set provider display colors",
		Long: `Without arguments, show the color of each provider. With a provider and a
color, change it. Colors are hex (#RRGGBB) or an ANSI 256 color index.`,
		Example: `  freetime colors
  freetime colors google "#EA4335"`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return errors.New("expected no arguments or a provider and a color")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrefs(cmd, func(a *app, r *renderer) error {
				ctx := cmd.Context()
				if len(args) == 2 {
					src, err := provider.ParseSource(args[0])
					if err != nil {
						return err
					}
					if err := a.prefs.SetColor(ctx, src, args[1]); err != nil {
						return err
					}
					r.colors = a.prefs.Colors(ctx)
				}

				sources := make([]string, 0, len(r.colors))
				for src := range r.colors {
					sources = append(sources, string(src))
				}
				sort.Strings(sources)
				for _, src := range sources {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
						r.providerStyle(provider.Source(src)).Width(10).Render(src), r.colors[provider.Source(src)])
				}
				return nil
			})
		},
	}
	return cmd
}
