package interval

import (
	"sort"
	"time"
)

// Interval is a closed time range. Only intervals with End after Start are
// admitted by the functions in this package.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New returns the interval [start, end].
func New(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Valid reports whether the interval has a positive duration.
func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether the two intervals share any instant, touching included.
func (iv Interval) Overlaps(other Interval) bool {
	return !iv.Start.After(other.End) && !other.Start.After(iv.End)
}

// Contains reports whether t lies within the interval, bounds included.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// Workday returns the working window of the civil day containing day,
// from startHour:00 to endHour:00 in loc.
func Workday(day time.Time, startHour, endHour int, loc *time.Location) Interval {
	if loc == nil {
		loc = time.Local
	}
	d := day.In(loc)
	y, m, dd := d.Date()
	return Interval{
		Start: time.Date(y, m, dd, startHour, 0, 0, 0, loc),
		End:   time.Date(y, m, dd, endHour, 0, 0, 0, loc),
	}
}

// Merge combines overlapping or touching intervals. The result is sorted by
// start and no two elements overlap or touch. Intervals without a positive
// duration are dropped.
func Merge(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return []Interval{}
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// ClampToWorkday intersects every interval with [workStart, workEnd] and
// drops the ones left empty.
func ClampToWorkday(intervals []Interval, workStart, workEnd time.Time) []Interval {
	out := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		start := iv.Start
		if start.Before(workStart) {
			start = workStart
		}
		end := iv.End
		if end.After(workEnd) {
			end = workEnd
		}
		if end.After(start) {
			out = append(out, Interval{Start: start, End: end})
		}
	}
	return out
}

// InvertToFree returns the gaps of busy within [workStart, workEnd] that last
// at least minGap. busy is merged first, so callers may pass raw blocks.
//
// The cursor only ever moves forward: a busy interval that ends before the
// cursor cannot pull it back.
func InvertToFree(busy []Interval, workStart, workEnd time.Time, minGap time.Duration) []Interval {
	free := []Interval{}
	if !workEnd.After(workStart) {
		return free
	}

	clamped := Merge(ClampToWorkday(busy, workStart, workEnd))

	emit := func(start, end time.Time) {
		if end.Sub(start) >= minGap && end.After(start) {
			free = append(free, Interval{Start: start, End: end})
		}
	}

	cursor := workStart
	for _, iv := range clamped {
		if iv.Start.After(cursor) {
			emit(cursor, iv.Start)
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if workEnd.After(cursor) {
		emit(cursor, workEnd)
	}
	return free
}
