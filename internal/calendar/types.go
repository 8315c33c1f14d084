package calendar

import (
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/freetime/internal/provider"
)

// IsPrivate reports whether an event visibility requires redaction.
func IsPrivate(visibility string) bool {
	return visibility == "private" || visibility == "confidential"
}

// toEventDetail converts a Google Calendar event. Cancelled events and
// events without a positive duration are skipped.
func (c *Client) toEventDetail(ev *calendar.Event) (provider.EventDetail, bool) {
	if ev == nil || ev.Status == "cancelled" {
		return provider.EventDetail{}, false
	}

	start, ok := c.eventTime(ev.Start)
	if !ok {
		return provider.EventDetail{}, false
	}
	end, ok := c.eventTime(ev.End)
	if !ok || !end.After(start) {
		return provider.EventDetail{}, false
	}

	return provider.NewEventDetail(provider.Google, start, end,
		ev.Summary, ev.Location, IsPrivate(ev.Visibility)), true
}

// eventTime parses a timed or all-day event boundary. All-day dates are
// civil dates in the client's zone.
func (c *Client) eventTime(edt *calendar.EventDateTime) (time.Time, bool) {
	if edt == nil {
		return time.Time{}, false
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		return t.In(c.loc), true
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", edt.Date, c.loc)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
