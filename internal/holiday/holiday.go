package holiday

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	appLog "deskcal/internal/log"
	"deskcal/internal/metrics"
	"deskcal/internal/model"
)

// DefaultURL is the public Japanese holiday API; %d is the year.
const DefaultURL = "https://holidays-jp.github.io/api/v1/%d/date.json"

// Source fetches one year of holidays from somewhere remote.
type Source interface {
	Fetch(ctx context.Context, year int) (model.Holidays, error)
}

// HTTPSource fetches a year as a JSON object of date key -> name.
type HTTPSource struct {
	// URLPattern is formatted with the year, e.g. DefaultURL.
	URLPattern string
	Client     *http.Client
}

// NewHTTPSource returns a source for urlPattern. A nil client means
// http.DefaultClient, which has no timeout.
func NewHTTPSource(urlPattern string, client *http.Client) *HTTPSource {
	if urlPattern == "" {
		urlPattern = DefaultURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{URLPattern: urlPattern, Client: client}
}

// Fetch performs one GET. Non-2xx and undecodable bodies are errors.
func (s *HTTPSource) Fetch(ctx context.Context, year int) (model.Holidays, error) {
	url := fmt.Sprintf(s.URLPattern, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("holiday source: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out model.Holidays
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("holiday source: decode: %w", err)
	}
	return out, nil
}

// Result is the outcome of a holiday lookup.
type Result struct {
	Year     int
	Holidays model.Holidays
	Status   model.Status
	// FromCache is true when the year was served from the cache file.
	FromCache bool
	Err       error
}

// Cache keeps fetched years in a JSON file: year -> date key -> name.
// Cached years are never refreshed. It is not safe for concurrent use;
// the controller is its only caller.
type Cache struct {
	path   string
	source Source
}

// New returns a cache persisted at path, filled from source on misses.
func New(path string, source Source) *Cache {
	return &Cache{path: path, source: source}
}

// FetchFromAPI asks the source for one year. Failures are logged and
// reported as an empty StatusDegraded result.
func (c *Cache) FetchFromAPI(ctx context.Context, year int) Result {
	data, err := c.source.Fetch(ctx, year)
	if err != nil {
		appLog.Error("holiday fetch failed", err, "year", year)
		return Result{Year: year, Holidays: model.Holidays{}, Status: model.StatusDegraded, Err: err}
	}
	if len(data) == 0 {
		return Result{Year: year, Holidays: model.Holidays{}, Status: model.StatusEmpty}
	}
	return Result{Year: year, Holidays: data, Status: model.StatusOK}
}

// LoadCache reads the whole cache file. A missing file is an empty cache.
func (c *Cache) LoadCache() (map[string]model.Holidays, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]model.Holidays{}, nil
		}
		return map[string]model.Holidays{}, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]model.Holidays{}, nil
	}
	var out map[string]model.Holidays
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]model.Holidays{}, fmt.Errorf("holiday cache: decode: %w", err)
	}
	if out == nil {
		out = map[string]model.Holidays{}
	}
	return out, nil
}

// SaveCache rewrites the whole cache file.
func (c *Cache) SaveCache(cache map[string]model.Holidays) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cache); err != nil {
		return err
	}
	return os.WriteFile(c.path, buf.Bytes(), 0o644)
}

// ForYear returns the holidays of year, from the cache when present,
// otherwise from the source. Only non-empty fetches are cached, so an
// empty or failed year is retried on the next call.
func (c *Cache) ForYear(ctx context.Context, year int) Result {
	key := strconv.Itoa(year)

	cache, err := c.LoadCache()
	if err != nil {
		appLog.Warn("holiday cache unreadable; treating as empty", "path", c.path, "err", err)
	}

	if hit, ok := cache[key]; ok {
		metrics.HolidayLookups.WithLabelValues("cache_hit").Inc()
		if hit == nil {
			hit = model.Holidays{}
		}
		return Result{Year: year, Holidays: hit, Status: model.StatusOK, FromCache: true}
	}

	appLog.Info("holiday cache miss; fetching", "year", year)
	res := c.FetchFromAPI(ctx, year)
	switch res.Status {
	case model.StatusOK:
		metrics.HolidayLookups.WithLabelValues("fetched").Inc()
		cache[key] = res.Holidays
		if err := c.SaveCache(cache); err != nil {
			appLog.Error("holiday cache save failed", err, "path", c.path, "year", year)
		}
	case model.StatusEmpty:
		metrics.HolidayLookups.WithLabelValues("empty").Inc()
	default:
		metrics.HolidayLookups.WithLabelValues("degraded").Inc()
	}
	return res
}
