package ics

import (
	"strings"
	"testing"
	"time"

	"deskcal/internal/model"
)

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func crlf(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestExport(t *testing.T) {
	loc := tokyo(t)
	events := model.Events{
		"2025-07-25": {
			{Title: "会議/打合せ", StartTime: "10:00", EndTime: "11:30", Memo: "room A"},
			{Title: "休暇"},
		},
	}
	holidays := model.Holidays{"2025-07-21": "海の日"}
	stamp := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	out := Export(events, holidays, loc, stamp)
	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"UID:2025-07-25-0@deskcal",
		"DTSTART:20250725T010000Z",
		"DTEND:20250725T023000Z",
		"DESCRIPTION:room A",
		"UID:2025-07-25-1@deskcal",
		"DTSTART;VALUE=DATE:20250725",
		"UID:2025-07-21-holiday@deskcal",
		"SUMMARY:海の日",
		"CATEGORIES:HOLIDAY",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("export missing %q:\n%s", want, out)
		}
	}
}

func TestExportImportKeepsRecords(t *testing.T) {
	loc := tokyo(t)
	events := model.Events{
		"2025-07-25": {{Title: "来客", StartTime: "13:00", EndTime: "14:00", Memo: "受付"}},
		"2025-07-26": {{Title: "私用"}},
	}
	body := Export(events, nil, loc, time.Now())

	parsed, err := ParseICS("export", []byte(body))
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      time.Date(2025, 7, 1, 0, 0, 0, 0, loc),
		RangeEnd:        time.Date(2025, 8, 1, 0, 0, 0, 0, loc),
	})
	if err != nil {
		t.Fatalf("ExpandOccurrences: %v", err)
	}
	recs := ToRecords(res.Occurrences)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %+v", recs)
	}
	if recs[0].Date != "2025-07-25" || recs[0].Event != events["2025-07-25"][0] {
		t.Fatalf("timed record changed: %+v", recs[0])
	}
	if recs[1].Date != "2025-07-26" || recs[1].Event.Title != "私用" || recs[1].Event.StartTime != "" {
		t.Fatalf("all-day record changed: %+v", recs[1])
	}
}

func TestExpandRecurringWithExdateAndOverride(t *testing.T) {
	loc := tokyo(t)
	body := crlf(
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"SUMMARY:定例",
		"DTSTART;TZID=Asia/Tokyo:20250701T090000",
		"DTEND;TZID=Asia/Tokyo:20250701T100000",
		"RRULE:FREQ=WEEKLY;COUNT=4",
		"EXDATE;TZID=Asia/Tokyo:20250708T090000",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:weekly-1",
		"SUMMARY:定例 (移動)",
		"RECURRENCE-ID;TZID=Asia/Tokyo:20250715T090000",
		"DTSTART;TZID=Asia/Tokyo:20250715T140000",
		"DTEND;TZID=Asia/Tokyo:20250715T150000",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"SUMMARY:no uid",
		"DTSTART:20250701T000000Z",
		"END:VEVENT",
		"END:VCALENDAR",
	)

	parsed, err := ParseICS("test", body)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected the UID-less event to be skipped, got %d events", len(parsed))
	}

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      time.Date(2025, 7, 1, 0, 0, 0, 0, loc),
		RangeEnd:        time.Date(2025, 7, 31, 0, 0, 0, 0, loc),
	})
	if err != nil {
		t.Fatalf("ExpandOccurrences: %v", err)
	}

	recs := ToRecords(res.Occurrences)
	want := []Record{
		{Date: "2025-07-01", Event: model.Event{Title: "定例", StartTime: "09:00", EndTime: "10:00"}},
		{Date: "2025-07-15", Event: model.Event{Title: "定例 (移動)", StartTime: "14:00", EndTime: "15:00"}},
		{Date: "2025-07-22", Event: model.Event{Title: "定例", StartTime: "09:00", EndTime: "10:00"}},
	}
	if len(recs) != len(want) {
		t.Fatalf("expected %d records, got %+v", len(want), recs)
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Fatalf("record %d = %+v, want %+v", i, recs[i], want[i])
		}
	}
}

func TestExpandRejectsInvertedRange(t *testing.T) {
	now := time.Now()
	if _, err := ExpandOccurrences(nil, ExpandConfig{RangeStart: now, RangeEnd: now.Add(-time.Hour)}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestExpandCapsSeries(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	res, err := ExpandOccurrences([]ParsedEvent{{
		UID:      "daily",
		Start:    start,
		End:      start.Add(time.Hour),
		RawRRule: "FREQ=DAILY",
	}}, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             start,
		RangeEnd:               start.AddDate(0, 1, 0),
		MaxOccurrencesPerEvent: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Occurrences) != 5 || len(res.TruncatedEvents) != 1 || res.TruncatedEvents[0] != "daily" {
		t.Fatalf("unexpected result: %d occurrences, truncated %v", len(res.Occurrences), res.TruncatedEvents)
	}
}

func TestToRecordsMultiDayAllDay(t *testing.T) {
	recs := ToRecords([]Occurrence{{
		Summary:  "出張",
		Location: "大阪",
		AllDay:   true,
		Start:    time.Date(2025, 7, 30, 0, 0, 0, 0, time.Local),
		End:      time.Date(2025, 8, 2, 0, 0, 0, 0, time.Local),
	}})
	if len(recs) != 3 {
		t.Fatalf("expected 3 days, got %+v", recs)
	}
	if recs[0].Date != "2025-07-30" || recs[2].Date != "2025-08-01" || recs[1].Event.Memo != "大阪" {
		t.Fatalf("unexpected records %+v", recs)
	}
}

func TestParseEmptyBody(t *testing.T) {
	if _, err := ParseICS("empty", []byte("  \n")); err == nil {
		t.Fatal("expected an error for an empty body")
	}
}
