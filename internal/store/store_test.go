package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"deskcal/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "data", "events.json"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := newStore(t)
	res := s.Load()
	if res.Status != model.StatusEmpty || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Events == nil || len(res.Events) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", res.Events)
	}
}

func TestLoadDegradedInputs(t *testing.T) {
	cases := map[string]string{
		"invalid json":  "This is not a valid JSON string {",
		"array":         "[]",
		"null":          "null",
		"string":        `"hello"`,
		"wrong element": `{"2025-07-25": "Meeting"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			writeFile(t, s.Path(), content)
			res := s.Load()
			if res.Status != model.StatusDegraded || res.Err == nil {
				t.Fatalf("expected degraded with error, got %+v", res)
			}
			if len(res.Events) != 0 {
				t.Fatalf("expected empty events, got %#v", res.Events)
			}
		})
	}
}

func TestLoadBlankFileIsEmpty(t *testing.T) {
	s := newStore(t)
	writeFile(t, s.Path(), "  \n")
	if res := s.Load(); res.Status != model.StatusEmpty {
		t.Fatalf("expected empty, got %+v", res)
	}
}

func TestLoadValidData(t *testing.T) {
	s := newStore(t)
	writeFile(t, s.Path(), `{
  "2025-07-25": [
    {"title": "会議", "start_time": "10:00", "end_time": "11:00", "memo": "プロジェクトミーティング"}
  ],
  "2025-07-26": [
    {"title": "セミナー", "start_time": "14:00", "end_time": "16:00", "memo": "新しい技術の学習"},
    {"title": "懇親会", "start_time": "18:00", "end_time": "", "memo": ""}
  ],
  "2025-07-27": []
}`)

	res := s.Load()
	if res.Status != model.StatusOK {
		t.Fatalf("expected ok, got %+v", res)
	}
	want := model.Events{
		"2025-07-25": {{Title: "会議", StartTime: "10:00", EndTime: "11:00", Memo: "プロジェクトミーティング"}},
		"2025-07-26": {
			{Title: "セミナー", StartTime: "14:00", EndTime: "16:00", Memo: "新しい技術の学習"},
			{Title: "懇親会", StartTime: "18:00"},
		},
	}
	if !reflect.DeepEqual(res.Events, want) {
		t.Fatalf("unexpected events:\n got %#v\nwant %#v", res.Events, want)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)
	events := model.Events{
		"2025-01-01": {{Title: "初詣", Memo: "<shrine> & friends"}},
		"2025-12-31": {{Title: "A", StartTime: "09:00"}, {Title: "B", EndTime: "23:59"}},
	}
	if err := s.Save(events); err != nil {
		t.Fatalf("save: %v", err)
	}
	res := s.Load()
	if !reflect.DeepEqual(res.Events, events) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", res.Events, events)
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), "初詣") || !strings.Contains(string(raw), "<shrine> & friends") {
		t.Fatalf("expected literal UTF-8 and unescaped HTML, got %s", raw)
	}
	if !strings.Contains(string(raw), "\n  \"2025-01-01\"") {
		t.Fatalf("expected two-space indentation, got %s", raw)
	}
}

func TestSaveNilWritesEmptyObject(t *testing.T) {
	s := newStore(t)
	if err := s.Save(nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, _ := os.ReadFile(s.Path())
	if strings.TrimSpace(string(raw)) != "{}" {
		t.Fatalf("expected {}, got %q", raw)
	}
}

func TestAddScenario(t *testing.T) {
	s := newStore(t)
	events := model.Events{}
	if err := s.Add(events, "2025-07-25", "Meeting", "10:00", "11:00", "note"); err != nil {
		t.Fatalf("add: %v", err)
	}

	want := model.Events{"2025-07-25": {{Title: "Meeting", StartTime: "10:00", EndTime: "11:00", Memo: "note"}}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("in-memory mismatch: %#v", events)
	}

	raw, _ := os.ReadFile(s.Path())
	var onDisk map[string][]map[string]string
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("decode saved file: %v", err)
	}
	wantDisk := map[string][]map[string]string{
		"2025-07-25": {{"title": "Meeting", "start_time": "10:00", "end_time": "11:00", "memo": "note"}},
	}
	if !reflect.DeepEqual(onDisk, wantDisk) {
		t.Fatalf("unexpected document: %s", raw)
	}
}

func TestAddAppendsInOrder(t *testing.T) {
	s := newStore(t)
	events := model.Events{"2025-07-25": {{Title: "existing"}}}
	if err := s.Add(events, "2025-07-25", "second", "", "", ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(events, "2025-07-26", "other day", "09:00", "10:00", ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := events["2025-07-25"]; len(got) != 2 || got[1].Title != "second" {
		t.Fatalf("unexpected list: %#v", got)
	}
	if res := s.Load(); !reflect.DeepEqual(res.Events, events) {
		t.Fatalf("disk and memory diverged: %#v", res.Events)
	}
}

func TestAddNilMap(t *testing.T) {
	s := newStore(t)
	if err := s.Add(nil, "2025-07-25", "x", "", "", ""); err == nil {
		t.Fatal("expected error for nil map")
	}
}

func TestUpdate(t *testing.T) {
	s := newStore(t)
	events := model.Events{"2025-07-25": {
		{Title: "元のタイトル", StartTime: "09:00", EndTime: "10:00", Memo: "元のメモ"},
		{Title: "別のイベント", StartTime: "14:00", EndTime: "15:00"},
	}}

	ok, err := s.Update(events, "2025-07-25", 0, "更新されたタイトル", "09:30", "10:30", "更新されたメモ")
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	if got := events["2025-07-25"][0]; got.Title != "更新されたタイトル" || got.StartTime != "09:30" {
		t.Fatalf("unexpected updated event: %#v", got)
	}
	if got := events["2025-07-25"][1]; got.Title != "別のイベント" {
		t.Fatalf("neighbour changed: %#v", got)
	}
	if res := s.Load(); !reflect.DeepEqual(res.Events, events) {
		t.Fatalf("update not persisted: %#v", res.Events)
	}
}

func TestUpdateOutOfRangeIsNoOp(t *testing.T) {
	s := newStore(t)
	events := model.Events{"2025-07-25": {{Title: "only"}}}
	before := events.Clone()

	for _, tc := range []struct {
		key   string
		index int
	}{
		{"2025-07-25", 99},
		{"2025-07-25", -1},
		{"2025-08-01", 0},
	} {
		ok, err := s.Update(events, tc.key, tc.index, "x", "", "", "")
		if ok || err != nil {
			t.Fatalf("update(%s,%d): ok=%v err=%v", tc.key, tc.index, ok, err)
		}
	}
	if !reflect.DeepEqual(events, before) {
		t.Fatalf("events changed: %#v", events)
	}
	if fileExists(s.Path()) {
		t.Fatal("no-op update must not write the file")
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	events := model.Events{
		"2025-07-25": {{Title: "A"}, {Title: "B"}},
		"2025-07-26": {{Title: "C"}},
	}

	ok, err := s.Delete(events, "2025-07-25", 0)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	want := model.Events{
		"2025-07-25": {{Title: "B"}},
		"2025-07-26": {{Title: "C"}},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("unexpected events: %#v", events)
	}

	if _, err := s.Delete(events, "2025-07-26", 0); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, present := events["2025-07-26"]; present {
		t.Fatal("emptied date key must be removed")
	}

	res := s.Load()
	if _, present := res.Events["2025-07-26"]; present {
		t.Fatalf("emptied key persisted: %#v", res.Events)
	}
}

func TestDeleteAbsentIsIdempotentAndDoesNotWrite(t *testing.T) {
	s := newStore(t)
	events := model.Events{"2025-07-25": {{Title: "A"}}}
	before := events.Clone()

	for i := 0; i < 2; i++ {
		ok, err := s.Delete(events, "2025-07-25", 99)
		if ok || err != nil {
			t.Fatalf("delete out of range: ok=%v err=%v", ok, err)
		}
		ok, err = s.Delete(events, "2030-01-01", 0)
		if ok || err != nil {
			t.Fatalf("delete absent key: ok=%v err=%v", ok, err)
		}
	}
	if !reflect.DeepEqual(events, before) {
		t.Fatalf("events changed: %#v", events)
	}
	if fileExists(s.Path()) {
		t.Fatal("no-op delete must not write the file")
	}
}

func TestConcurrentAddsOnSharedMapLoseNothing(t *testing.T) {
	s := newStore(t)
	events := model.Events{}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Add(events, "2025-07-25", "parallel", "", "", ""); err != nil {
				t.Errorf("add: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(s.Load().Events["2025-07-25"]); got != 20 {
		t.Fatalf("expected 20 persisted events, got %d", got)
	}
}

func TestProvision(t *testing.T) {
	dir := t.TempDir()

	t.Run("copies template", func(t *testing.T) {
		tmpl := filepath.Join(dir, "template.json")
		writeFile(t, tmpl, `{"2025-01-01": [{"title": "seed", "start_time": "", "end_time": "", "memo": ""}]}`)
		target := filepath.Join(dir, "a", "events.json")
		if err := Provision(target, tmpl); err != nil {
			t.Fatalf("provision: %v", err)
		}
		if res := New(target).Load(); res.Status != model.StatusOK || res.Events["2025-01-01"][0].Title != "seed" {
			t.Fatalf("unexpected provisioned content: %+v", res)
		}
	})

	t.Run("missing template yields empty document", func(t *testing.T) {
		target := filepath.Join(dir, "b", "events.json")
		if err := Provision(target, filepath.Join(dir, "nope.json")); err != nil {
			t.Fatalf("provision: %v", err)
		}
		if res := New(target).Load(); res.Status != model.StatusEmpty {
			t.Fatalf("expected empty, got %+v", res)
		}
	})

	t.Run("existing file untouched", func(t *testing.T) {
		target := filepath.Join(dir, "c", "events.json")
		writeFile(t, target, `{"2025-02-02": [{"title": "mine"}]}`)
		if err := Provision(target, ""); err != nil {
			t.Fatalf("provision: %v", err)
		}
		if res := New(target).Load(); res.Events["2025-02-02"][0].Title != "mine" {
			t.Fatalf("existing file overwritten: %+v", res)
		}
	})
}

// blockPath turns path into a non-empty directory so the final rename fails.
func blockPath(t *testing.T, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(path, "keep"), "x")
}

func TestFailedSaveLeavesMappingUnchanged(t *testing.T) {
	s := newStore(t)
	events := model.Events{}
	if err := s.Add(events, "2025-07-25", "Meeting", "10:00", "", ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	want := events.Clone()
	blockPath(t, s.Path())

	if err := s.Add(events, "2025-07-25", "Second", "", "", ""); err == nil {
		t.Fatal("expected add to fail")
	}
	if err := s.Add(events, "2025-07-26", "New day", "", "", ""); err == nil {
		t.Fatal("expected add on a new day to fail")
	}
	if ok, err := s.Update(events, "2025-07-25", 0, "Changed", "", "", ""); ok || err == nil {
		t.Fatalf("expected update to fail, got %v %v", ok, err)
	}
	if ok, err := s.Delete(events, "2025-07-25", 0); ok || err == nil {
		t.Fatalf("expected delete to fail, got %v %v", ok, err)
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("mapping changed by failed saves: %#v", events)
	}
}
