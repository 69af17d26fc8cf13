// Package status keeps the footer line of the calendar: a ticking clock,
// today's weather and a short-lived flash message.
package status

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "deskcal/internal/log"
	"deskcal/internal/weather"
)

const (
	clockLayout = "2006-01-02 15:04:05"
	clockPrefix = "🕒 "

	// DefaultFlash is how long a flash message stays visible.
	DefaultFlash = 3 * time.Second
)

var iconGlyphs = map[weather.Icon]string{
	weather.IconSun:     "☀",
	weather.IconCloudy:  "☁",
	weather.IconRain:    "☂",
	weather.IconSnow:    "❄",
	weather.IconThunder: "⚡",
	weather.IconWind:    "🌀",
}

// Clock formats the current time in a fixed location.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// Text returns e.g. "🕒 2025-07-25 09:30:00".
func (c Clock) Text() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now()
	if c.Location != nil {
		t = t.In(c.Location)
	}
	return clockPrefix + t.Format(clockLayout)
}

// Snapshot is what the footer shows at one instant.
type Snapshot struct {
	Clock   string         `json:"clock"`
	Weather string         `json:"weather,omitempty"`
	Icons   []weather.Icon `json:"icons,omitempty"`
	Glyphs  string         `json:"glyphs,omitempty"`
	Flash   string         `json:"flash,omitempty"`
}

// Line holds the footer state. It is safe for concurrent use.
type Line struct {
	clock Clock

	mu         sync.Mutex
	clockText  string
	weather    *weather.Snapshot
	flash      string
	flashUntil time.Time
}

func NewLine(clock Clock) *Line {
	l := &Line{clock: clock}
	l.clockText = clock.Text()
	return l
}

func (l *Line) now() time.Time {
	if l.clock.Now != nil {
		return l.clock.Now()
	}
	return time.Now()
}

// Tick refreshes the clock text.
func (l *Line) Tick() {
	text := l.clock.Text()
	l.mu.Lock()
	l.clockText = text
	l.mu.Unlock()
}

// SetWeather replaces the weather part; nil clears it.
func (l *Line) SetWeather(s *weather.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.weather = s
}

// Flash shows msg for d (DefaultFlash when d <= 0).
func (l *Line) Flash(msg string, d time.Duration) {
	if d <= 0 {
		d = DefaultFlash
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flash = msg
	l.flashUntil = l.now().Add(d)
}

// Snapshot returns the current footer contents. An expired flash is
// dropped.
func (l *Line) Snapshot() Snapshot {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{Clock: l.clockText}
	if l.weather != nil {
		s.Weather = l.weather.Description
		s.Icons = append([]weather.Icon(nil), l.weather.Icons...)
		s.Glyphs = Glyphs(l.weather.Icons)
	}
	if l.flash != "" {
		if now.Before(l.flashUntil) {
			s.Flash = l.flash
		} else {
			l.flash = ""
		}
	}
	return s
}

// Glyphs renders icons as symbols for plain-text output.
func Glyphs(icons []weather.Icon) string {
	var b strings.Builder
	for _, ic := range icons {
		b.WriteString(iconGlyphs[ic])
	}
	return b.String()
}

// Refresher is satisfied by *controller.Controller.
type Refresher interface {
	Reload(ctx context.Context)
}

// Ticker drives a Line once a second and, optionally, a periodic refresh.
type Ticker struct {
	cron *cron.Cron
}

// NewTicker schedules the clock tick. When refreshSpec is non-empty,
// refresh is reloaded on that schedule and afterRefresh (if set) runs
// after each reload. Specs accept an optional seconds field and
// descriptors such as "@every 10m".
func NewTicker(line *Line, refreshSpec string, refresh Refresher, afterRefresh func()) (*Ticker, error) {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	if _, err := c.AddFunc("@every 1s", line.Tick); err != nil {
		return nil, err
	}
	if refreshSpec != "" && refresh != nil {
		_, err := c.AddFunc(refreshSpec, func() {
			appLog.Debug("scheduled refresh")
			refresh.Reload(context.Background())
			if afterRefresh != nil {
				afterRefresh()
			}
		})
		if err != nil {
			return nil, err
		}
	}
	return &Ticker{cron: c}, nil
}

// Start runs the schedule in its own goroutine.
func (t *Ticker) Start() {
	t.cron.Start()
}

// Stop halts the schedule and waits for running jobs.
func (t *Ticker) Stop() {
	<-t.cron.Stop().Done()
}
