package util

import "time"

// Clock is the "current date" oracle used by classifiers and services
type Clock interface {
	Today() time.Time
}

// SystemClock reports today's calendar date in a fixed location
type SystemClock struct {
	Location *time.Location
}

// Today returns midnight UTC of the current calendar date in the clock's location
func (c SystemClock) Today() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return TruncateToDay(time.Now().In(loc))
}

// TruncateToDay keeps only the calendar date of t, as midnight UTC.
// Comparisons between dates from different locations then reduce to calendar order.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns the first day of t's month, as midnight UTC
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts a first-of-month date by n months.
// Only valid for first-of-month inputs; day 1 never overflows.
func AddMonths(firstOfMonth time.Time, n int) time.Time {
	return time.Date(firstOfMonth.Year(), firstOfMonth.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetweenInclusive counts the calendar months touched by [start, end].
// Both dates are normalized to the first of their month; a normalized end before
// the normalized start yields 0.
func MonthsBetweenInclusive(start, end time.Time) int {
	s := FirstOfMonth(start)
	e := FirstOfMonth(end)

	months := (e.Year()-s.Year())*12 + int(e.Month()) - int(s.Month())
	if !e.Before(s) {
		return months + 1
	}
	return 0
}

// DaysBetween returns the whole calendar days from 'from' to 'to' (negative if to is earlier)
func DaysBetween(from, to time.Time) int {
	return int(TruncateToDay(to).Sub(TruncateToDay(from)).Hours() / 24)
}

// EndOfDay returns the instant the calendar day of t ends, in t's location
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// FormatYearMonth renders a year/month pair as "2006-01"
func FormatYearMonth(year, month int) string {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}
