package model

import "fmt"

// Event is a single user-created appointment. It has no identity of its
// own: it is addressed by its date key and its position in that day's list.
type Event struct {
	Title     string `json:"title"`
	StartTime string `json:"start_time"` // "HH:MM" or ""
	EndTime   string `json:"end_time"`   // "HH:MM" or ""
	Memo      string `json:"memo"`
}

// Events maps a "YYYY-MM-DD" date key to that day's events in insertion
// order. A key is never present with an empty list.
type Events map[string][]Event

// ForDate returns a copy of the events on the given day, or an empty
// (non-nil) slice.
func (e Events) ForDate(key string) []Event {
	list := e[key]
	out := make([]Event, len(list))
	copy(out, list)
	return out
}

// Clone deep-copies the mapping so callers cannot mutate the owner's lists.
func (e Events) Clone() Events {
	out := make(Events, len(e))
	for k, list := range e {
		cp := make([]Event, len(list))
		copy(cp, list)
		out[k] = cp
	}
	return out
}

// Count returns the total number of events across all days.
func (e Events) Count() int {
	n := 0
	for _, list := range e {
		n += len(list)
	}
	return n
}

// Holidays maps a "YYYY-MM-DD" date key to the holiday name.
type Holidays map[string]string

// Clone copies the mapping.
func (h Holidays) Clone() Holidays {
	out := make(Holidays, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Status tells apart the three ways a best-effort read can end.
type Status int

const (
	// StatusOK means data was found.
	StatusOK Status = iota
	// StatusEmpty means there was genuinely nothing there (missing file,
	// upstream returned no data).
	StatusEmpty
	// StatusDegraded means a failure was recovered into an empty result.
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// MarshalText lets Status appear as a string in JSON responses.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the forms written by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ok":
		*s = StatusOK
	case "empty":
		*s = StatusEmpty
	case "degraded":
		*s = StatusDegraded
	default:
		return fmt.Errorf("model: unknown status %q", b)
	}
	return nil
}

// EventsResult is the outcome of loading the events document.
type EventsResult struct {
	Events Events
	Status Status
	// Err carries the diagnostic when Status is StatusDegraded.
	Err error
}
