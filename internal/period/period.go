// Package period computes the civil-calendar windows that refreshes fetch:
// single days and Monday-to-Sunday weeks in a configured time zone.
package period

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout used for day keys and user-supplied dates.
const DateLayout = "2006-01-02"

// Granularity selects a single day or a whole week.
type Granularity string

const (
	Day  Granularity = "day"
	Week Granularity = "week"
)

// ParseGranularity accepts "day" or "week", case-insensitively. Empty means Day.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "day":
		return Day, nil
	case "week":
		return Week, nil
	default:
		return "", fmt.Errorf("unknown view %q (want day or week)", s)
	}
}

// Period is a fetch window. End is the last second of the final day.
type Period struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
}

// ForDate returns the day or week containing date in loc.
func ForDate(date time.Time, g Granularity, loc *time.Location) Period {
	if g == Week {
		start, end := WeekBounds(date, loc)
		return Period{Start: start, End: end, Granularity: Week}
	}
	start, end := DayBounds(date, loc)
	return Period{Start: start, End: end, Granularity: Day}
}

// Days returns midnight of each civil day in the period.
func (p Period) Days() []time.Time {
	return Days(p.Start, p.End)
}

// String renders the period for logs and headings.
func (p Period) String() string {
	if p.Granularity == Week {
		return fmt.Sprintf("week %d (%s to %s)", ISOWeekNumber(p.Start), Key(p.Start), Key(p.End))
	}
	return Key(p.Start)
}

// DayBounds returns 00:00:00 and 23:59:59 of the civil day containing date.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	d := date.In(zone(loc))
	y, m, dd := d.Date()
	start := time.Date(y, m, dd, 0, 0, 0, 0, d.Location())
	end := time.Date(y, m, dd, 23, 59, 59, 0, d.Location())
	return start, end
}

// WeekBounds returns Monday 00:00:00 and Sunday 23:59:59 of the ISO week
// containing date. A Sunday belongs to the week that ends on it.
func WeekBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	dayStart, _ := DayBounds(date, loc)
	offset := (int(dayStart.Weekday()) + 6) % 7 // days since Monday
	monday := dayStart.AddDate(0, 0, -offset)
	_, sundayEnd := DayBounds(monday.AddDate(0, 0, 6), loc)
	return monday, sundayEnd
}

// ISOWeekNumber returns the ISO-8601 week number of date.
func ISOWeekNumber(date time.Time) int {
	_, week := date.ISOWeek()
	return week
}

// Days returns midnight of each civil day from start through end, inclusive.
func Days(start, end time.Time) []time.Time {
	var days []time.Time
	y, m, d := start.Date()
	cur := time.Date(y, m, d, 0, 0, 0, 0, start.Location())
	for !cur.After(end) {
		days = append(days, cur)
		cur = cur.AddDate(0, 0, 1)
	}
	return days
}

// Key formats the civil day of t as YYYY-MM-DD.
func Key(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD in loc. An empty string yields today.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	loc = zone(loc)
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "today") {
		return time.Now().In(loc), nil
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

func zone(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
