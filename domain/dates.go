package domain

import "time"

// DateLayout is the calendar date format used for every deadline and start date.
const DateLayout = "2006-01-02"

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate accepts a plain date or any string whose first ten characters
// are one, such as an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, bool) {
	if len(s) < len(DateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, s[:len(DateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NormalizeDate returns the YYYY-MM-DD part of s, or "" when s is not a date.
func NormalizeDate(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return ""
	}
	return FormatDate(t)
}

// AddDays adds days to date. An empty or unparsable date counts from today.
func AddDays(date string, days int, today time.Time) string {
	base, ok := ParseDate(date)
	if !ok {
		base = today
	}
	return FormatDate(base.AddDate(0, 0, days))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
