// Package controller owns the calendar state: the displayed month, that
// year's holidays, the full event mapping and today's weather. Every
// operation runs under one mutex, so event mutations coming from the HTTP
// API, the refresh job and the CLI are applied one at a time against the
// same in-memory mapping.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"deskcal/internal/calendar"
	"deskcal/internal/holiday"
	appLog "deskcal/internal/log"
	"deskcal/internal/model"
	"deskcal/internal/store"
	"deskcal/internal/weather"
)

// ErrInvalidEvent is returned when an event fails validation.
var ErrInvalidEvent = errors.New("invalid event")

const timeLayout = "15:04"

// TitleChoices are the suggested titles offered by event forms.
var TitleChoices = []string{"会議/打合せ", "来客", "外出", "出張", "休暇", "私用", "その他"}

// TimeChoices returns 07:00 through 21:30 in 30 minute steps.
func TimeChoices() []string {
	out := make([]string, 0, 30)
	for h := 7; h <= 21; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h), fmt.Sprintf("%02d:30", h))
	}
	return out
}

// WeatherSource is satisfied by *weather.Fetcher.
type WeatherSource interface {
	FetchToday(ctx context.Context) weather.Result
}

// Deps are the collaborators of a Controller. Weather may be nil.
type Deps struct {
	Store    *store.Store
	Holidays *holiday.Cache
	Weather  WeatherSource
	Location *time.Location
	Now      func() time.Time
}

// View is a copy of the controller state, safe to hand to readers.
type View struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Matrix [][]int `json:"matrix"`
	Today  string  `json:"today"`

	Holidays model.Holidays    `json:"holidays"`
	Events   model.Events      `json:"events"`
	Weather  *weather.Snapshot `json:"weather,omitempty"`

	HolidayStatus model.Status `json:"holiday_status"`
	EventsStatus  model.Status `json:"events_status"`
	WeatherStatus model.Status `json:"weather_status"`
	LoadedAt      time.Time    `json:"loaded_at"`
}

// Controller is the single owner of calendar state.
type Controller struct {
	mu   sync.Mutex
	deps Deps

	year  int
	month int

	holidays model.Holidays
	events   model.Events
	weather  *weather.Snapshot

	holidayStatus model.Status
	eventsStatus  model.Status
	weatherStatus model.Status
	loadedAt      time.Time
}

// New positions the controller on the current month and loads everything.
func New(ctx context.Context, deps Deps) *Controller {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	c := &Controller{
		deps:     deps,
		holidays: model.Holidays{},
		events:   model.Events{},
	}
	today := c.now()
	c.year, c.month = today.Year(), int(today.Month())
	c.Reload(ctx)
	return c
}

func (c *Controller) now() time.Time {
	return c.deps.Now().In(c.deps.Location)
}

// Advance moves to the following month and reloads.
func (c *Controller) Advance(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.year, c.month = calendar.Next(c.year, c.month)
	c.reloadLocked(ctx)
}

// Retreat moves to the preceding month and reloads.
func (c *Controller) Retreat(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.year, c.month = calendar.Prev(c.year, c.month)
	c.reloadLocked(ctx)
}

// ResetToToday moves back to the current month and reloads.
func (c *Controller) ResetToToday(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	today := c.now()
	c.year, c.month = today.Year(), int(today.Month())
	c.reloadLocked(ctx)
}

// Reload refetches holidays for the displayed year, the whole event
// document and a fresh weather snapshot. Failures leave empty data behind
// and are reflected in the statuses of View.
func (c *Controller) Reload(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloadLocked(ctx)
}

func (c *Controller) reloadLocked(ctx context.Context) {
	if c.deps.Holidays != nil {
		hr := c.deps.Holidays.ForYear(ctx, c.year)
		c.holidays, c.holidayStatus = hr.Holidays, hr.Status
		if c.holidays == nil {
			c.holidays = model.Holidays{}
		}
	} else {
		c.holidays, c.holidayStatus = model.Holidays{}, model.StatusEmpty
	}

	er := c.deps.Store.Load()
	c.events, c.eventsStatus = er.Events, er.Status
	if c.events == nil {
		c.events = model.Events{}
	}

	if c.deps.Weather != nil {
		wr := c.deps.Weather.FetchToday(ctx)
		c.weather, c.weatherStatus = wr.Snapshot, wr.Status
	} else {
		c.weather, c.weatherStatus = nil, model.StatusEmpty
	}

	c.loadedAt = c.deps.Now()
	appLog.Debug("calendar reloaded",
		"year", c.year, "month", c.month,
		"holidays", c.holidayStatus, "events", c.eventsStatus, "weather", c.weatherStatus)
}

// Month returns the displayed year and month.
func (c *Controller) Month() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.year, c.month
}

// Today returns today's date key in the configured location.
func (c *Controller) Today() string {
	return calendar.DateKeyOf(c.now())
}

// EventsForDate returns a copy of the day's events, empty when there are
// none.
func (c *Controller) EventsForDate(dateKey string) []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events.ForDate(dateKey)
}

// HolidayName returns the holiday name for a date of the loaded year.
func (c *Controller) HolidayName(dateKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.holidays[dateKey]
	return name, ok
}

// Weather returns the last snapshot, nil when none is available.
func (c *Controller) Weather() (*weather.Snapshot, model.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.weather == nil {
		return nil, c.weatherStatus
	}
	snap := *c.weather
	snap.Icons = append([]weather.Icon(nil), c.weather.Icons...)
	return &snap, c.weatherStatus
}

// View copies the full read model, including the month matrix.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	// year and month only ever come from calendar arithmetic.
	matrix, _ := calendar.MonthMatrix(c.year, c.month)
	v := View{
		Year:          c.year,
		Month:         c.month,
		Matrix:        matrix,
		Today:         calendar.DateKeyOf(c.now()),
		Holidays:      c.holidays.Clone(),
		Events:        c.events.Clone(),
		HolidayStatus: c.holidayStatus,
		EventsStatus:  c.eventsStatus,
		WeatherStatus: c.weatherStatus,
		LoadedAt:      c.loadedAt,
	}
	if c.weather != nil {
		snap := *c.weather
		snap.Icons = append([]weather.Icon(nil), c.weather.Icons...)
		v.Weather = &snap
	}
	return v
}

// ValidateEvent checks the fields an event form collects: a non-blank
// title and times that are either empty or HH:MM, with the end not
// before the start when both are set.
func ValidateEvent(title, startTime, endTime string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	for _, tm := range []struct{ name, value string }{{"start_time", startTime}, {"end_time", endTime}} {
		if tm.value == "" {
			continue
		}
		if _, err := time.Parse(timeLayout, tm.value); err != nil || len(tm.value) != len(timeLayout) {
			return fmt.Errorf("%w: %s must be HH:MM, got %q", ErrInvalidEvent, tm.name, tm.value)
		}
	}
	// Zero-padded HH:MM values order the same as strings.
	if startTime != "" && endTime != "" && startTime > endTime {
		return fmt.Errorf("%w: end_time %s is before start_time %s", ErrInvalidEvent, endTime, startTime)
	}
	return nil
}

func validDateKey(dateKey string) error {
	if _, err := calendar.ParseDateKey(dateKey); err != nil {
		return fmt.Errorf("%w: date %q: %v", ErrInvalidEvent, dateKey, err)
	}
	return nil
}

// AddEvent validates and appends an event, persisting the whole mapping.
func (c *Controller) AddEvent(ctx context.Context, dateKey, title, startTime, endTime, memo string) error {
	if err := validDateKey(dateKey); err != nil {
		return err
	}
	if err := ValidateEvent(title, startTime, endTime); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.deps.Store.Add(c.events, dateKey, strings.TrimSpace(title), startTime, endTime, memo); err != nil {
		return fmt.Errorf("add event: %w", err)
	}
	appLog.Info("event added", "date", dateKey, "title", title)
	return nil
}

// UpdateEvent replaces the event at (dateKey, index). It reports false
// when no such event exists.
func (c *Controller) UpdateEvent(ctx context.Context, dateKey string, index int, title, startTime, endTime, memo string) (bool, error) {
	if err := ValidateEvent(title, startTime, endTime); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ok, err := c.deps.Store.Update(c.events, dateKey, index, strings.TrimSpace(title), startTime, endTime, memo)
	if err != nil {
		return ok, fmt.Errorf("update event: %w", err)
	}
	return ok, nil
}

// DeleteEvent removes the event at (dateKey, index). It reports false when
// no such event exists.
func (c *Controller) DeleteEvent(ctx context.Context, dateKey string, index int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok, err := c.deps.Store.Delete(c.events, dateKey, index)
	if err != nil {
		return ok, fmt.Errorf("delete event: %w", err)
	}
	if ok {
		appLog.Info("event deleted", "date", dateKey, "index", index)
	}
	return ok, nil
}
