package holiday

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"deskcal/internal/model"
)

type fakeSource struct {
	data  map[int]model.Holidays
	err   error
	calls []int
}

func (f *fakeSource) Fetch(_ context.Context, year int) (model.Holidays, error) {
	f.calls = append(f.calls, year)
	if f.err != nil {
		return nil, f.err
	}
	return f.data[year], nil
}

func newCache(t *testing.T, src Source) *Cache {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "holidays.json"), src)
}

func TestForYearCacheMissFetchesAndPersists(t *testing.T) {
	src := &fakeSource{data: map[int]model.Holidays{2025: {"2025-01-01": "New Year"}}}
	c := newCache(t, src)
	seed := map[string]model.Holidays{"2024": {"2024-01-01": "元日"}}
	if err := c.SaveCache(seed); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	res := c.ForYear(context.Background(), 2025)
	if res.Status != model.StatusOK || res.FromCache {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !reflect.DeepEqual(res.Holidays, model.Holidays{"2025-01-01": "New Year"}) {
		t.Fatalf("unexpected holidays: %#v", res.Holidays)
	}
	if !reflect.DeepEqual(src.calls, []int{2025}) {
		t.Fatalf("expected one fetch for 2025, got %v", src.calls)
	}

	cache, err := c.LoadCache()
	if err != nil {
		t.Fatalf("load cache: %v", err)
	}
	want := map[string]model.Holidays{
		"2024": {"2024-01-01": "元日"},
		"2025": {"2025-01-01": "New Year"},
	}
	if !reflect.DeepEqual(cache, want) {
		t.Fatalf("unexpected cache: %#v", cache)
	}
}

func TestForYearEmptyFetchLeavesCacheUnchanged(t *testing.T) {
	src := &fakeSource{data: map[int]model.Holidays{2025: {}}}
	c := newCache(t, src)
	seed := map[string]model.Holidays{"2024": {"2024-01-01": "元日"}}
	if err := c.SaveCache(seed); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	res := c.ForYear(context.Background(), 2025)
	if res.Status != model.StatusEmpty || len(res.Holidays) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	cache, _ := c.LoadCache()
	if !reflect.DeepEqual(cache, seed) {
		t.Fatalf("cache changed: %#v", cache)
	}

	// Nothing was cached, so the next call retries.
	c.ForYear(context.Background(), 2025)
	if len(src.calls) != 2 {
		t.Fatalf("expected a retry, calls=%v", src.calls)
	}
}

func TestForYearCacheHitSkipsSource(t *testing.T) {
	src := &fakeSource{}
	c := newCache(t, src)
	if err := c.SaveCache(map[string]model.Holidays{"2025": {"2025-01-01": "元日"}}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	res := c.ForYear(context.Background(), 2025)
	if !res.FromCache || res.Status != model.StatusOK || res.Holidays["2025-01-01"] != "元日" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(src.calls) != 0 {
		t.Fatalf("source should not be called on hit: %v", src.calls)
	}
}

func TestForYearSourceFailureIsDegraded(t *testing.T) {
	src := &fakeSource{err: errors.New("network down")}
	c := newCache(t, src)

	res := c.ForYear(context.Background(), 2025)
	if res.Status != model.StatusDegraded || res.Err == nil {
		t.Fatalf("expected degraded, got %+v", res)
	}
	if res.Holidays == nil || len(res.Holidays) != 0 {
		t.Fatalf("expected empty holidays, got %#v", res.Holidays)
	}
	if _, err := os.Stat(c.path); !os.IsNotExist(err) {
		t.Fatalf("failed fetch must not create the cache file: %v", err)
	}
}

func TestForYearCorruptCacheStillFetches(t *testing.T) {
	src := &fakeSource{data: map[int]model.Holidays{2025: {"2025-01-01": "元日"}}}
	c := newCache(t, src)
	if err := os.WriteFile(c.path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := c.LoadCache(); err == nil {
		t.Fatal("expected decode error")
	}

	res := c.ForYear(context.Background(), 2025)
	if res.Status != model.StatusOK {
		t.Fatalf("unexpected result: %+v", res)
	}
	cache, err := c.LoadCache()
	if err != nil || cache["2025"]["2025-01-01"] != "元日" {
		t.Fatalf("cache not rewritten: %#v %v", cache, err)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2025/date.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"2025-01-01":"元日","2025-01-13":"成人の日"}`))
		case "/2026/date.json":
			_, _ = w.Write([]byte(`not json`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/%d/date.json", srv.Client())
	ctx := context.Background()

	got, err := src.Fetch(ctx, 2025)
	if err != nil {
		t.Fatalf("fetch 2025: %v", err)
	}
	if len(got) != 2 || got["2025-01-13"] != "成人の日" {
		t.Fatalf("unexpected holidays: %#v", got)
	}
	if _, err := src.Fetch(ctx, 2026); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := src.Fetch(ctx, 1999); err == nil {
		t.Fatal("expected status error")
	}
}
