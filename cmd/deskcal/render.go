package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"deskcal/internal/calendar"
	"deskcal/internal/controller"
	"deskcal/internal/model"
	"deskcal/internal/status"
	"deskcal/internal/theme"
)

const cellWidth = 4

var weekdayLabels = []string{"日", "月", "火", "水", "木", "金", "土"}

// renderMonth draws the grid, the month's holidays and events, and a footer
// with the clock and the forecast. Colors are dropped when w is not a
// terminal.
func renderMonth(w io.Writer, v controller.View, th theme.Theme, clock string) string {
	r := lipgloss.NewRenderer(w)
	text := lipgloss.Color(th.Color("text", "#333333"))

	header := r.NewStyle().Bold(true).Foreground(lipgloss.Color(th.Color("accent", "#F1AEB9")))
	cell := r.NewStyle().Width(cellWidth).Align(lipgloss.Right).Foreground(text)
	sunday := cell.Background(lipgloss.Color(th.Color("sunday", "#FADCD9")))
	saturday := cell.Background(lipgloss.Color(th.Color("saturday", "#DCEEF9")))
	holiday := cell.Background(lipgloss.Color(th.Color("holiday", "#F6CACA")))
	today := cell.Bold(true).Foreground(lipgloss.Color(th.Color("today_fg", "#3F68D8")))
	footer := r.NewStyle().Foreground(lipgloss.Color(th.Color("footer_fg", "#888888")))
	label := r.NewStyle().Foreground(lipgloss.Color(th.Color("holiday_label_fg", "#888888")))

	var b strings.Builder
	b.WriteString(header.Render(fmt.Sprintf("%d年%d月", v.Year, v.Month)))
	b.WriteByte('\n')

	labels := make([]string, len(weekdayLabels))
	for col, name := range weekdayLabels {
		st := cell
		switch {
		case calendar.IsSunday(col):
			st = sunday
		case calendar.IsSaturday(col):
			st = saturday
		}
		labels[col] = st.Render(name)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, labels...))
	b.WriteByte('\n')

	for _, week := range v.Matrix {
		cells := make([]string, len(week))
		for col, day := range week {
			if day == 0 {
				cells[col] = cell.Render("")
				continue
			}
			key := calendar.DateKey(v.Year, v.Month, day)
			mark := " "
			if len(v.Events[key]) > 0 {
				mark = "*"
			}
			st := cell
			switch {
			case key == v.Today:
				st = today
			case v.Holidays[key] != "":
				st = holiday
			case calendar.IsSunday(col):
				st = sunday
			case calendar.IsSaturday(col):
				st = saturday
			}
			cells[col] = st.Render(fmt.Sprintf("%2d%s", day, mark))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteByte('\n')
	}

	prefix := fmt.Sprintf("%04d-%02d-", v.Year, v.Month)
	var holidayLines []string
	for _, key := range sortedDateKeys(v.Holidays) {
		if strings.HasPrefix(key, prefix) {
			holidayLines = append(holidayLines, label.Render(fmt.Sprintf("%s  %s", key, v.Holidays[key])))
		}
	}
	if len(holidayLines) > 0 {
		b.WriteByte('\n')
		b.WriteString(strings.Join(holidayLines, "\n"))
		b.WriteByte('\n')
	}

	var eventLines []string
	for _, key := range sortedDateKeys(v.Events) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		for i, ev := range v.Events[key] {
			eventLines = append(eventLines, fmt.Sprintf("%s #%d  %s", key, i, formatEvent(ev)))
		}
	}
	if len(eventLines) > 0 {
		b.WriteByte('\n')
		b.WriteString(strings.Join(eventLines, "\n"))
		b.WriteByte('\n')
	}

	foot := clock
	if v.Weather != nil {
		foot += "  " + status.Glyphs(v.Weather.Icons) + " " + v.Weather.Description
	}
	b.WriteByte('\n')
	b.WriteString(footer.Render(foot))
	return b.String()
}

// formatEvent renders "10:00-11:00 会議/打合せ (memo)".
func formatEvent(ev model.Event) string {
	var parts []string
	switch {
	case ev.StartTime != "" && ev.EndTime != "":
		parts = append(parts, ev.StartTime+"-"+ev.EndTime)
	case ev.StartTime != "":
		parts = append(parts, ev.StartTime)
	case ev.EndTime != "":
		parts = append(parts, "-"+ev.EndTime)
	}
	parts = append(parts, ev.Title)
	if memo := strings.TrimSpace(ev.Memo); memo != "" {
		parts = append(parts, "("+strings.ReplaceAll(memo, "\n", " / ")+")")
	}
	return strings.Join(parts, " ")
}

// printDay lists one day's events with their indexes.
func printDay(w io.Writer, date string, events []model.Event, holidayName string) {
	if holidayName != "" {
		fmt.Fprintf(w, "%s  %s\n", date, holidayName)
	} else {
		fmt.Fprintln(w, date)
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "  (no events)")
		return
	}
	for i, ev := range events {
		fmt.Fprintf(w, "  #%d  %s\n", i, formatEvent(ev))
	}
}

func holidayName(ctrl *controller.Controller, date string) string {
	name, _ := ctrl.HolidayName(date)
	return name
}

func titleChoices() []string {
	return controller.TitleChoices
}

func sortedDateKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
