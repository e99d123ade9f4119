package contextutils

import (
	"time"
)

// DateLayout is the calendar-date format used for selections and streaks.
const DateLayout = "2006-01-02"

// CalendarDate returns t's calendar date in loc as YYYY-MM-DD.
// A nil loc means UTC.
func CalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// ParseCalendarDate validates a YYYY-MM-DD string and returns midnight UTC of that day.
func ParseCalendarDate(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, WrapErrorf(ErrInvalidFormat, "invalid date %q, expected YYYY-MM-DD", date)
	}
	return t, nil
}

// DaysBetween returns the number of calendar days from a to b (b - a).
// Both arguments must be YYYY-MM-DD; elapsed hours play no part.
func DaysBetween(a, b string) (int, error) {
	ta, err := ParseCalendarDate(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseCalendarDate(b)
	if err != nil {
		return 0, err
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// AddDays shifts a YYYY-MM-DD date by n calendar days.
func AddDays(date string, n int) (string, error) {
	t, err := ParseCalendarDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// LoadLocation resolves an IANA zone name, falling back to UTC for empty or unknown names.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
