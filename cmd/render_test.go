package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/teemow/freetime/internal/aggregate"
	"github.com/teemow/freetime/internal/interval"
	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/prefs"
	"github.com/teemow/freetime/internal/provider"
	"github.com/teemow/freetime/internal/session"
)

var testLoc = time.FixedZone("CET", 3600)

func at(day, hour, minute int) time.Time {
	return time.Date(2024, 3, day, hour, minute, 0, 0, testLoc)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Minute, "45m"},
		{2 * time.Hour, "2h"},
		{90 * time.Minute, "1h30m"},
		{4*time.Hour + 45*time.Minute, "4h45m"},
		{0, "0m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRendererSnapshot(t *testing.T) {
	snap := &aggregate.Snapshot{
		Period: period.ForDate(at(4, 0, 0), period.Day, testLoc),
		Busy: []provider.BusyBlock{
			{Interval: interval.New(at(4, 10, 0), at(4, 12, 0)), Source: provider.Google},
		},
		Details: []provider.EventDetail{
			provider.NewEventDetail(provider.Google, at(4, 10, 0), at(4, 12, 0), "Planning", "Room 1", false),
		},
		Free: map[string][]interval.Interval{
			"2024-03-04": {
				interval.New(at(4, 9, 0), at(4, 10, 0)),
				interval.New(at(4, 12, 0), at(4, 17, 0)),
			},
		},
		Days:       []string{"2024-03-04"},
		AuthErrors: map[provider.Source]string{provider.Microsoft: "sign-in required"},
	}

	var buf bytes.Buffer
	newRenderer(&buf, nil, testLoc).Snapshot(snap, prefs.DefaultWorkHours())
	out := buf.String()

	for _, want := range []string{
		"Free time, 2024-03-04",
		"Mon 2024-03-04",
		"09:00-17:00",
		"09:00-10:00",
		"(1h)",
		"12:00-17:00",
		"total 6h",
		"google 1",
		"Planning",
		"@ Room 1",
		"microsoft: sign-in required (run 'freetime connect microsoft')",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "microsoft 0") {
		t.Error("a provider that failed to sign in should not report a busy count")
	}
}

func TestRendererSnapshotNoFreeTime(t *testing.T) {
	snap := &aggregate.Snapshot{
		Period: period.ForDate(at(4, 0, 0), period.Day, testLoc),
		Free:   map[string][]interval.Interval{},
		Days:   []string{"2024-03-04"},
	}

	var buf bytes.Buffer
	newRenderer(&buf, nil, testLoc).Snapshot(snap, prefs.DefaultWorkHours())
	if !strings.Contains(buf.String(), "no free time") {
		t.Errorf("expected 'no free time', got:\n%s", buf.String())
	}
}

func TestRendererStatusAndPrefs(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, prefs.DefaultColors(), testLoc)

	r.Status([]session.ProviderStatus{
		{Source: provider.Microsoft, State: session.Connected, Username: "ada@contoso.com"},
		{Source: provider.Google, State: session.Disconnected},
	})
	r.Views(nil)
	r.WorkHours(prefs.DefaultWorkHours().SetDay(time.Friday, prefs.NewHours(9, 12)), 30)

	out := buf.String()
	for _, want := range []string{
		"connected ada@contoso.com",
		"disconnected",
		"No saved views.",
		"09:00-12:00",
		"30 minutes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output is missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Monday") > strings.Index(out, "Sunday") {
		t.Error("work hours should start on Monday")
	}
}
