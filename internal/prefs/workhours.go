package prefs

import (
	"fmt"
	"strings"
	"time"

	"github.com/teemow/freetime/internal/interval"
)

// Default work hours.
const (
	DefaultStartHour = 9
	DefaultEndHour   = 17
)

// Hours is a start/end hour pair, both in [0,23].
type Hours struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// NewHours clamps both bounds and snaps end up to start when they conflict.
func NewHours(start, end int) Hours {
	return Hours{Start: clampHour(start), End: clampHour(end)}.Normalize()
}

// SetStart moves the start bound. A start after the end drags the end
// along with it.
func (h Hours) SetStart(hour int) Hours {
	h.Start = clampHour(hour)
	if h.End < h.Start {
		h.End = h.Start
	}
	return h
}

// SetEnd moves the end bound. An end before the start drags the start
// along with it.
func (h Hours) SetEnd(hour int) Hours {
	h.End = clampHour(hour)
	if h.End < h.Start {
		h.Start = h.End
	}
	return h
}

// Normalize clamps both bounds and resolves end < start by snapping end to start.
func (h Hours) Normalize() Hours {
	h.Start = clampHour(h.Start)
	h.End = clampHour(h.End)
	if h.End < h.Start {
		h.End = h.Start
	}
	return h
}

func (h Hours) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", h.Start, h.End)
}

// WorkHours holds either one uniform range or one range per weekday.
type WorkHours struct {
	Uniform Hours `json:"uniform"`
	PerDay  bool  `json:"perDay"`
	// Days is indexed by time.Weekday (Sunday = 0).
	Days [7]Hours `json:"days"`
}

// DefaultWorkHours returns 09:00-17:00 on every day.
func DefaultWorkHours() WorkHours {
	return UniformWorkHours(DefaultStartHour, DefaultEndHour)
}

// UniformWorkHours returns the same range for every weekday.
func UniformWorkHours(start, end int) WorkHours {
	h := NewHours(start, end)
	wh := WorkHours{Uniform: h}
	for i := range wh.Days {
		wh.Days[i] = h
	}
	return wh
}

// For returns the range that applies on the given weekday.
func (wh WorkHours) For(day time.Weekday) Hours {
	if wh.PerDay && day >= time.Sunday && day <= time.Saturday {
		return wh.Days[day]
	}
	return wh.Uniform
}

// SetDay switches to per-weekday mode and sets one day's range. Days that
// were never set individually keep the previous uniform range.
func (wh WorkHours) SetDay(day time.Weekday, h Hours) WorkHours {
	if !wh.PerDay {
		for i := range wh.Days {
			wh.Days[i] = wh.Uniform
		}
		wh.PerDay = true
	}
	wh.Days[day] = h.Normalize()
	return wh
}

// Normalize applies Hours.Normalize to every range.
func (wh WorkHours) Normalize() WorkHours {
	wh.Uniform = wh.Uniform.Normalize()
	for i := range wh.Days {
		wh.Days[i] = wh.Days[i].Normalize()
	}
	return wh
}

// Window returns the working interval on the civil day containing day.
func (wh WorkHours) Window(day time.Time, loc *time.Location) interval.Interval {
	if loc == nil {
		loc = time.Local
	}
	h := wh.For(day.In(loc).Weekday())
	return interval.Workday(day, h.Start, h.End, loc)
}

// ParseWeekday accepts an English weekday name or its three-letter prefix.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.HasPrefix(strings.ToLower(d.String()), s) {
				return d, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func clampHour(h int) int {
	switch {
	case h < 0:
		return 0
	case h > 23:
		return 23
	default:
		return h
	}
}
