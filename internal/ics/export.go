// Package ics converts between the events document and iCalendar.
// Export writes every event and holiday as a VEVENT; import parses a
// calendar file, expands recurrences over a window and maps occurrences
// onto event records.
package ics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"deskcal/internal/calendar"
	appLog "deskcal/internal/log"
	"deskcal/internal/model"
)

const (
	productID        = "-//deskcal//deskcal calendar//JA"
	holidayCategory  = "HOLIDAY"
	uidDomain        = "deskcal"
	recordTimeLayout = "15:04"
)

// UID returns the stable identifier of the event at (dateKey, index).
func UID(dateKey string, index int) string {
	return fmt.Sprintf("%s-%d@%s", dateKey, index, uidDomain)
}

func holidayUID(dateKey string) string {
	return fmt.Sprintf("%s-holiday@%s", dateKey, uidDomain)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Export renders events and holidays as an iCalendar document. Events with
// a start time become timed VEVENTs in loc; the rest, and every holiday,
// are all-day. stamp is written as DTSTAMP. Entries with unreadable date
// keys or times are skipped.
func Export(events model.Events, holidays model.Holidays, loc *time.Location, stamp time.Time) string {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendarFor("deskcal")
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName("deskcal")
	cal.SetTimezoneId(loc.String())

	for _, key := range sortedKeys(events) {
		day, err := calendar.ParseDateKey(key)
		if err != nil {
			appLog.Warn("export: skipping bad date key", "date", key)
			continue
		}
		for i, ev := range events[key] {
			ve := cal.AddEvent(UID(key, i))
			ve.SetDtStampTime(stamp)
			ve.SetSummary(ev.Title)
			if ev.Memo != "" {
				ve.SetDescription(ev.Memo)
			}
			if !setEventTimes(ve, day, ev, loc) {
				appLog.Warn("export: bad time, writing all-day", "date", key, "index", i)
				ve.SetAllDayStartAt(day)
				ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
			}
		}
	}

	for _, key := range sortedKeys(holidays) {
		day, err := calendar.ParseDateKey(key)
		if err != nil {
			continue
		}
		ve := cal.AddEvent(holidayUID(key))
		ve.SetDtStampTime(stamp)
		ve.SetSummary(holidays[key])
		ve.SetAllDayStartAt(day)
		ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
		ve.AddCategory(holidayCategory)
	}

	return cal.Serialize()
}

// setEventTimes writes DTSTART/DTEND. It reports false when a time cannot
// be read.
func setEventTimes(ve *ical.VEvent, day time.Time, ev model.Event, loc *time.Location) bool {
	if ev.StartTime == "" {
		ve.SetAllDayStartAt(day)
		ve.SetAllDayEndAt(day.AddDate(0, 0, 1))
		return true
	}
	start, ok := atTime(day, ev.StartTime, loc)
	if !ok {
		return false
	}
	end := start.Add(time.Hour)
	if ev.EndTime != "" {
		e, ok := atTime(day, ev.EndTime, loc)
		if !ok {
			return false
		}
		if e.After(start) {
			end = e
		}
	}
	ve.SetStartAt(start)
	ve.SetEndAt(end)
	return true
}

func atTime(day time.Time, hhmm string, loc *time.Location) (time.Time, bool) {
	t, err := time.Parse(recordTimeLayout, hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), true
}

// Record is an event placed on a date, ready for the store.
type Record struct {
	Date  string
	Event model.Event
}

// ToRecords maps occurrences onto event records. Timed occurrences keep
// HH:MM times, the end time only when it falls on the same day. All-day
// occurrences spanning several days produce one record per day.
// Location and description are joined into the memo.
func ToRecords(occs []Occurrence) []Record {
	out := make([]Record, 0, len(occs))
	for _, o := range occs {
		title := strings.TrimSpace(o.Summary)
		if title == "" {
			title = "(no title)"
		}
		memo := joinNonEmpty("\n", strings.TrimSpace(o.Location), strings.TrimSpace(o.Description))

		if o.AllDay {
			day := time.Date(o.Start.Year(), o.Start.Month(), o.Start.Day(), 0, 0, 0, 0, time.UTC)
			last := day
			if o.End.After(o.Start) {
				end := time.Date(o.End.Year(), o.End.Month(), o.End.Day(), 0, 0, 0, 0, time.UTC)
				last = end.AddDate(0, 0, -1)
			}
			for d := day; !d.After(last); d = d.AddDate(0, 0, 1) {
				out = append(out, Record{
					Date:  calendar.DateKeyOf(d),
					Event: model.Event{Title: title, Memo: memo},
				})
			}
			continue
		}

		rec := Record{
			Date: calendar.DateKeyOf(o.Start),
			Event: model.Event{
				Title:     title,
				StartTime: o.Start.Format(recordTimeLayout),
				Memo:      memo,
			},
		}
		if o.End.After(o.Start) && calendar.DateKeyOf(o.End) == rec.Date {
			rec.Event.EndTime = o.End.Format(recordTimeLayout)
		}
		out = append(out, rec)
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
