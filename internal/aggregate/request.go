package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/teemow/freetime/internal/period"
	"github.com/teemow/freetime/internal/prefs"
)

// Query holds the refresh parameters a user supplied. Empty fields fall back
// to the saved view named by SavedView, then to stored preferences.
type Query struct {
	Date          string
	View          string
	Details       *bool
	MinGapMinutes *int
	SavedView     string
}

// BuildRequest resolves a query against the preferences store.
func BuildRequest(ctx context.Context, store *prefs.Store, q Query, loc *time.Location) (Request, error) {
	if loc == nil {
		loc = time.Local
	}

	wh := store.WorkHours(ctx)
	minGap := store.MinGapMinutes(ctx)
	date, view, details := q.Date, q.View, false

	if q.SavedView != "" {
		v, err := store.FindView(ctx, q.SavedView)
		if err != nil {
			return Request{}, err
		}
		if date == "" {
			date = v.Date
		}
		if view == "" {
			view = v.View
		}
		details = v.Details
		if v.MinGapMinutes != nil {
			minGap = *v.MinGapMinutes
		}
		if v.WorkHours != nil {
			wh = *v.WorkHours
		}
	}

	if q.Details != nil {
		details = *q.Details
	}
	if q.MinGapMinutes != nil {
		if *q.MinGapMinutes < 0 {
			return Request{}, fmt.Errorf("minimum gap must not be negative, got %d", *q.MinGapMinutes)
		}
		minGap = *q.MinGapMinutes
	}

	g, err := period.ParseGranularity(view)
	if err != nil {
		return Request{}, err
	}
	day, err := period.ParseDate(date, loc)
	if err != nil {
		return Request{}, err
	}

	return Request{
		Date:        day,
		Granularity: g,
		Details:     details,
		MinGap:      time.Duration(minGap) * time.Minute,
		WorkHours:   wh,
	}, nil
}
