// Package calendar holds the date arithmetic behind the month view: the
// Sunday-first day matrix, month stepping and "YYYY-MM-DD" date keys.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// DateKeyLayout is the canonical day key shared by events and holidays.
const DateKeyLayout = "2006-01-02"

// ErrInvalidMonth is returned for a month outside 1..12.
var ErrInvalidMonth = errors.New("calendar: invalid month")

// MonthMatrix returns the weeks of the given month as rows of 7 day
// numbers, Sunday first. Cells outside the month are 0.
func MonthMatrix(year, month int) ([][]int, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}

	first := time.Date(year, time.Month(month), 1, 12, 0, 0, 0, time.UTC)
	lead := int(first.Weekday()) // Sunday == 0
	days := DaysIn(year, month)

	rows := (lead + days + 6) / 7
	out := make([][]int, rows)
	for r := range out {
		out[r] = make([]int, 7)
	}
	for d := 1; d <= days; d++ {
		cell := lead + d - 1
		out[cell/7][cell%7] = d
	}
	return out, nil
}

// DaysIn returns the number of days in the month.
func DaysIn(year, month int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 12, 0, 0, 0, time.UTC).Day()
}

// Next returns the month after (year, month).
func Next(year, month int) (int, int) {
	if month == 12 {
		return year + 1, 1
	}
	return year, month + 1
}

// Prev returns the month before (year, month).
func Prev(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}

// DateKey formats a day as "YYYY-MM-DD".
func DateKey(year, month, day int) string {
	// Use noon to avoid timezone issues when formatting to YYYY-MM-DD
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, time.UTC).Format(DateKeyLayout)
}

// DateKeyOf formats t's calendar day in its own location.
func DateKeyOf(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// ParseDateKey parses a "YYYY-MM-DD" key in UTC.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.Parse(DateKeyLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: bad date key %q: %w", key, err)
	}
	return t, nil
}

// IsSunday reports whether a matrix column is Sunday.
func IsSunday(col int) bool { return col == 0 }

// IsSaturday reports whether a matrix column is Saturday.
func IsSaturday(col int) bool { return col == 6 }
