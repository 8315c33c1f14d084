package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("CET", 60*60)

	start, end := DayBounds(time.Date(2024, 3, 31, 14, 0, 0, 0, loc), loc)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 0, loc), end)
}

func TestDayBoundsConvertsZone(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	// 02:00 UTC on the 5th is still the 4th in UTC-5.
	start, _ := DayBounds(time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, "2024-03-04", Key(start))
}

func TestWeekBounds(t *testing.T) {
	tests := []struct {
		name       string
		date       time.Time
		wantMonday string
		wantSunday string
	}{
		{"monday", time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), "2024-03-04", "2024-03-10"},
		{"wednesday", time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC), "2024-03-04", "2024-03-10"},
		{"sunday belongs to the week ending that day", time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC), "2024-03-04", "2024-03-10"},
		{"crosses a month", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "2024-02-26", "2024-03-03"},
		{"crosses a year", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2024-12-30", "2025-01-05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := WeekBounds(tt.date, time.UTC)
			assert.Equal(t, tt.wantMonday, Key(start))
			assert.Equal(t, time.Monday, start.Weekday())
			assert.Equal(t, 0, start.Hour())
			assert.Equal(t, tt.wantSunday, Key(end))
			assert.Equal(t, time.Sunday, end.Weekday())
			assert.Equal(t, 23, end.Hour())
			assert.Equal(t, 59, end.Second())
		})
	}
}

func TestISOWeekNumber(t *testing.T) {
	assert.Equal(t, 10, ISOWeekNumber(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, ISOWeekNumber(time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 53, ISOWeekNumber(time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC)))
}

func TestForDateDays(t *testing.T) {
	date := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

	day := ForDate(date, Day, time.UTC)
	require.Len(t, day.Days(), 1)
	assert.Equal(t, "2024-03-06", day.String())

	week := ForDate(date, Week, time.UTC)
	days := week.Days()
	require.Len(t, days, 7)
	assert.Equal(t, "2024-03-04", Key(days[0]))
	assert.Equal(t, "2024-03-10", Key(days[6]))
	assert.Contains(t, week.String(), "week 10")
}

func TestParseGranularity(t *testing.T) {
	g, err := ParseGranularity("Week")
	require.NoError(t, err)
	assert.Equal(t, Week, g)

	g, err = ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, Day, g)

	_, err = ParseGranularity("month")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-04", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), got)

	_, err = ParseDate("04/03/2024", time.UTC)
	assert.Error(t, err)

	today, err := ParseDate("", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, Key(time.Now().UTC()), Key(today))
}
