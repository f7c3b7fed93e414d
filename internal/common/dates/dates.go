// Package dates holds the calendar arithmetic used for due dates. Business
// dates are civil dates: midnight UTC of the calendar day they name.
package dates

import "time"

const Layout = "2006-01-02"

// Civil returns the calendar day of t (as seen in t's location) as a civil date.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today normalizes an instant to the civil date it falls on in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Civil(now.In(loc))
}

// Parse reads a YYYY-MM-DD string into a civil date.
func Parse(s string) (time.Time, error) {
	return time.ParseInLocation(Layout, s, time.UTC)
}

// MustParse is Parse for literals.
func MustParse(s string) time.Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func Format(t time.Time) string {
	return t.Format(Layout)
}

// AddDays moves a civil date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return Civil(t).AddDate(0, 0, n)
}

// AddMonthsClamped adds n calendar months, clamping the day to the end of the
// target month (Jan 31 + 1 month = Feb 28/29).
func AddMonthsClamped(t time.Time, n int) time.Time {
	return MonthDay(t, n, Civil(t).Day())
}

// MonthDay returns day of the month n months after t, clamped to the end of
// that month. A non-positive day means t's own day.
func MonthDay(t time.Time, n, day int) time.Time {
	t = Civil(t)
	if day <= 0 {
		day = t.Day()
	}
	y, m, _ := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysBetween returns the whole calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	return int(Civil(b).Sub(Civil(a)).Hours() / 24)
}

// Same reports whether two instants name the same civil date.
func Same(a, b time.Time) bool {
	return Civil(a).Equal(Civil(b))
}
