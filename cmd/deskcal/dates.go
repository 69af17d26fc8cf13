package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"deskcal/internal/calendar"
)

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDate turns "2025-07-25", "today", "tomorrow" or phrases like
// "next friday" into a date key relative to now.
func parseDate(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty date")
	}
	if t, err := calendar.ParseDateKey(raw); err == nil {
		return calendar.DateKeyOf(t), nil
	}
	switch strings.ToLower(raw) {
	case "today":
		return calendar.DateKeyOf(now), nil
	case "yesterday":
		return calendar.DateKeyOf(now.AddDate(0, 0, -1)), nil
	}

	res, err := dateParser.Parse(raw, now)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", raw, err)
	}
	if res == nil {
		return "", fmt.Errorf("unrecognized date %q (use YYYY-MM-DD)", raw)
	}
	return calendar.DateKeyOf(res.Time.In(now.Location())), nil
}
