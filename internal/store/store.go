package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	appLog "deskcal/internal/log"
	"deskcal/internal/metrics"
	"deskcal/internal/model"
)

// ErrNotFound reports an event address (date key, index) with nothing there.
var ErrNotFound = errors.New("store: event not found")

const filePermissions = 0o644

// Store persists the events document as one JSON file.
//
// Mutations operate on a mapping owned by the caller and rewrite the whole
// file afterwards. The mutex is held across the in-memory change and the
// write, so callers sharing one Store cannot interleave partial writes or
// lose each other's updates on a shared mapping.
type Store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by path. Nothing is read until Load.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Provision makes sure the events file exists. An existing file is left
// alone; otherwise the template is copied, or an empty document is written
// when the template is missing.
func Provision(path, templatePath string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data := []byte("{}\n")
	if templatePath != "" {
		tmpl, err := os.ReadFile(templatePath)
		switch {
		case err == nil:
			data = tmpl
		case errors.Is(err, fs.ErrNotExist):
			appLog.Warn("events template missing; starting empty", "template", templatePath)
		default:
			return fmt.Errorf("read events template: %w", err)
		}
	}

	appLog.Info("provisioning events file", "path", path, "template", templatePath)
	return os.WriteFile(path, data, filePermissions)
}

// Load reads the events document. It never fails: a missing or blank file
// is StatusEmpty, anything unreadable or of the wrong shape is
// StatusDegraded with the reason in Err.
func (s *Store) Load() model.EventsResult {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.EventsResult{Events: model.Events{}, Status: model.StatusEmpty}
		}
		return s.degraded(fmt.Errorf("read events file: %w", err))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return model.EventsResult{Events: model.Events{}, Status: model.StatusEmpty}
	}

	events, err := decode(data)
	if err != nil {
		return s.degraded(err)
	}
	if len(events) == 0 {
		return model.EventsResult{Events: events, Status: model.StatusEmpty}
	}
	return model.EventsResult{Events: events, Status: model.StatusOK}
}

func (s *Store) degraded(err error) model.EventsResult {
	appLog.Warn("failed to load events file; using empty events", "path", s.path, "err", err)
	return model.EventsResult{Events: model.Events{}, Status: model.StatusDegraded, Err: err}
}

func decode(data []byte) (model.Events, error) {
	if !json.Valid(data) {
		return nil, errors.New("events file is not valid JSON")
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return nil, errors.New("events file is not a JSON object")
	}

	out := make(model.Events, len(top))
	for key, raw := range top {
		var list []model.Event
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("events for %q: %w", key, err)
		}
		if len(list) == 0 {
			continue
		}
		out[key] = list
	}
	return out, nil
}

// Save rewrites the whole events document.
func (s *Store) Save(events model.Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(events)
}

// saveLocked writes via a temp file and rename (caller must hold s.mu).
func (s *Store) saveLocked(events model.Events) (err error) {
	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			appLog.Error("events save failed", err, "path", s.path)
		}
		metrics.StoreWrites.WithLabelValues(result).Inc()
		metrics.StoreWriteSeconds.Observe(time.Since(start).Seconds())
	}()

	if events == nil {
		events = model.Events{}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".events-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Add appends an event to the day's list, creating it if needed, and saves.
// The mapping is left unchanged when the save fails.
// Field validation is the caller's concern.
func (s *Store) Add(events model.Events, dateKey, title, startTime, endTime, memo string) error {
	if events == nil {
		return errors.New("store: add to nil events map")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := events[dateKey]
	next := make([]model.Event, len(prev), len(prev)+1)
	copy(next, prev)
	events[dateKey] = append(next, model.Event{
		Title:     title,
		StartTime: startTime,
		EndTime:   endTime,
		Memo:      memo,
	})
	if err := s.saveLocked(events); err != nil {
		restore(events, dateKey, prev, had)
		return err
	}
	return nil
}

// Update replaces the event at index and saves. An unknown day or an
// out-of-range index is a logged no-op: it reports false and writes nothing.
func (s *Store) Update(events model.Events, dateKey string, index int, title, startTime, endTime, memo string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := events[dateKey]
	if !ok || index < 0 || index >= len(list) {
		appLog.Warn("event update skipped: no such event", "date", dateKey, "index", index)
		return false, nil
	}
	next := make([]model.Event, len(list))
	copy(next, list)
	next[index] = model.Event{
		Title:     title,
		StartTime: startTime,
		EndTime:   endTime,
		Memo:      memo,
	}
	events[dateKey] = next
	if err := s.saveLocked(events); err != nil {
		restore(events, dateKey, list, true)
		return false, err
	}
	return true, nil
}

// Delete removes the event at index, dropping the day once its list is
// empty, and saves. An unknown address is a no-op that writes nothing.
func (s *Store) Delete(events model.Events, dateKey string, index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := events[dateKey]
	if !ok || index < 0 || index >= len(list) {
		appLog.Debug("event delete skipped: no such event", "date", dateKey, "index", index)
		return false, nil
	}
	next := make([]model.Event, 0, len(list)-1)
	next = append(next, list[:index]...)
	next = append(next, list[index+1:]...)
	if len(next) == 0 {
		delete(events, dateKey)
	} else {
		events[dateKey] = next
	}
	if err := s.saveLocked(events); err != nil {
		restore(events, dateKey, list, true)
		return false, err
	}
	return true, nil
}

// restore puts a day's list back after a failed save.
func restore(events model.Events, dateKey string, list []model.Event, had bool) {
	if had {
		events[dateKey] = list
	} else {
		delete(events, dateKey)
	}
}
