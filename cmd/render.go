package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/teemow/freetime/internal/aggregate"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	dayStyle = lipgloss.NewStyle().
			Bold(true).
			Width(16)

	freeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))
)

// renderer prints snapshots and status for humans.
type renderer struct {
	w      io.Writer
	colors prefs.Colors
	loc    *time.Location
}

func newRenderer(w io.Writer, colors prefs.Colors, loc *time.Location) *renderer {
	if colors == nil {
		colors = prefs.DefaultColors()
	}
	if loc == nil {
		loc = time.Local
	}
	return &renderer{w: w, colors: colors, loc: loc}
}

func (r *renderer) providerStyle(src provider.Source) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	if c, ok := r.colors[src]; ok && c != "" {
		s = s.Foreground(lipgloss.Color(c))
	}
	return s
}

// Snapshot prints the free slots of every day, busy counts per provider,
// optional event details and any provider that needs signing in again.
func (r *renderer) Snapshot(snap *aggregate.Snapshot, wh prefs.WorkHours) {
	fmt.Fprintln(r.w, titleStyle.Render("Free time, "+snap.Period.String()))
	fmt.Fprintln(r.w)

	for _, key := range snap.Days {
		day, err := time.ParseInLocation(period.DateLayout, key, r.loc)
		if err != nil {
			continue
		}
		label := dayStyle.Render(day.Format("Mon 2006-01-02"))
		hours := dimStyle.Render(wh.For(day.Weekday()).String())

		slots := snap.Free[key]
		if len(slots) == 0 {
			fmt.Fprintf(r.w, "%s %s  %s\n", label, hours, dimStyle.Render("no free time"))
			continue
		}
		parts := make([]string, len(slots))
		var total time.Duration
		for i, s := range slots {
			d := s.Duration()
			total += d
			parts[i] = freeStyle.Render(fmt.Sprintf("%s-%s", clock(s.Start, r.loc), clock(s.End, r.loc))) +
				dimStyle.Render(" ("+formatDuration(d)+")")
		}
		fmt.Fprintf(r.w, "%s %s  %s  %s\n", label, hours, strings.Join(parts, "  "),
			dimStyle.Render("total "+formatDuration(total)))
	}

	fmt.Fprintln(r.w)
	r.busySummary(snap)

	if len(snap.Details) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, titleStyle.Render("Events"))
		for _, d := range snap.Details {
			line := fmt.Sprintf("  %s %s-%s  %s", d.Start.In(r.loc).Format("Mon"),
				clock(d.Start, r.loc), clock(d.End, r.loc), d.Title)
			if d.Location != "" {
				line += dimStyle.Render(" @ " + d.Location)
			}
			fmt.Fprintf(r.w, "%s  %s\n", line, r.providerStyle(d.Source).Render(string(d.Source)))
		}
	}

	if len(snap.AuthErrors) > 0 {
		fmt.Fprintln(r.w)
		sources := make([]string, 0, len(snap.AuthErrors))
		for src := range snap.AuthErrors {
			sources = append(sources, string(src))
		}
		sort.Strings(sources)
		for _, src := range sources {
			fmt.Fprintln(r.w, warningStyle.Render(fmt.Sprintf("! %s: %s (run 'freetime connect %s')",
				src, snap.AuthErrors[provider.Source(src)], src)))
		}
	}
}

func (r *renderer) busySummary(snap *aggregate.Snapshot) {
	counts := make(map[provider.Source]int, len(provider.Sources))
	for _, b := range snap.Busy {
		counts[b.Source]++
	}
	parts := make([]string, 0, len(provider.Sources))
	for _, src := range provider.Sources {
		if _, failed := snap.AuthErrors[src]; failed {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d", r.providerStyle(src).Render("■ "+string(src)), counts[src]))
	}
	fmt.Fprintf(r.w, "%s %s\n", dimStyle.Render("Busy blocks:"), strings.Join(parts, "  "))
}

// Status prints one line per provider.
func (r *renderer) Status(statuses []session.ProviderStatus) {
	for _, st := range statuses {
		name := r.providerStyle(st.Source).Width(10).Render(string(st.Source))
		state := dimStyle.Render(st.State.String())
		if st.State == session.Connected {
			state = successStyle.Render(st.State.String())
		}
		line := fmt.Sprintf("%s %s", name, state)
		if st.Username != "" {
			line += " " + st.Username
		}
		if st.LastError != "" {
			line += " " + warningStyle.Render(st.LastError)
		}
		fmt.Fprintln(r.w, line)
	}
}

// Views prints the saved views.
func (r *renderer) Views(views []prefs.SavedView) {
	if len(views) == 0 {
		fmt.Fprintln(r.w, dimStyle.Render("No saved views."))
		return
	}
	for _, v := range views {
		date := v.Date
		if date == "" {
			date = "today"
		}
		opts := []string{v.View, date}
		if v.Details {
			opts = append(opts, "details")
		}
		if v.MinGapMinutes != nil {
			opts = append(opts, fmt.Sprintf("min gap %dm", *v.MinGapMinutes))
		}
		if v.WorkHours != nil {
			opts = append(opts, "hours "+v.WorkHours.Uniform.String())
		}
		fmt.Fprintf(r.w, "%s %s  %s\n", titleStyle.Render(v.Name), dimStyle.Render(v.ID), strings.Join(opts, ", "))
	}
}

// WorkHours prints the range for every weekday, Monday first.
func (r *renderer) WorkHours(wh prefs.WorkHours, minGap int) {
	for i := 1; i <= 7; i++ {
		day := time.Weekday(i % 7)
		fmt.Fprintf(r.w, "%s %s\n", dayStyle.Render(day.String()), wh.For(day).String())
	}
	fmt.Fprintf(r.w, "%s %d minutes\n", dayStyle.Render("Minimum gap"), minGap)
}

func clock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

// formatDuration renders 90m as "1h30m" and 45m as "45m".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%02dm", h, m)
	}
}
