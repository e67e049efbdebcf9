package strategy

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DateRange is an inclusive calendar-date window used to gate entries.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange builds a range from two 2006-01-02 date strings. The end
// date is inclusive: bars up to the end of that day pass the filter.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing range start %q: %w", start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("parsing range end %q: %w", end, err)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("range end %s before start %s", end, start)
	}
	return DateRange{Start: s, End: e.AddDate(0, 0, 1)}, nil
}

// Contains reports whether t falls inside the range. The comparison uses
// the calendar date of t, ignoring its timezone offset.
func (r DateRange) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(r.Start) && day.Before(r.End)
}
