package config

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	appLog "deskcal/internal/log"
	"deskcal/internal/holiday"
	"deskcal/internal/theme"
	"deskcal/internal/weather"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment variables (optionally from a .env file) override
// file values after loading.

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "Asia/Tokyo"
	defaultDirName  = ".deskcal"
)

// HolidayConfig describes the remote holiday source.
type HolidayConfig struct {
	// URL is a pattern formatted with the year, e.g.
	// "https://holidays-jp.github.io/api/v1/%d/date.json".
	URL string `yaml:"url" json:"url"`
}

// WeatherConfig describes the forecast overview source.
type WeatherConfig struct {
	URL string `yaml:"url" json:"url"`
	// Region is the sentence prefix that names the area, e.g. "神奈川県は、".
	Region string `yaml:"region" json:"region"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
// PasswordHash is an argon2id hash produced by `deskcal hash-password`.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	PasswordHash string `yaml:"password_hash" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone that decides what "today" is.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir holds the writable documents (events, holiday cache).
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// EventsFile defaults to <data_dir>/events.json.
	EventsFile string `yaml:"events_file" json:"events_file"`

	// EventsTemplate is copied to EventsFile on first run, if it exists.
	EventsTemplate string `yaml:"events_template" json:"events_template"`

	// HolidayCacheFile defaults to <data_dir>/holidays.json.
	HolidayCacheFile string `yaml:"holiday_cache_file" json:"holiday_cache_file"`

	// Theme is the initial palette: "light" or "dark".
	Theme string `yaml:"theme" json:"theme"`

	// Refresh is a cron spec (seconds field optional) for reloading the
	// controller while serving. Empty disables periodic reloads.
	Refresh string `yaml:"refresh" json:"refresh"`

	// HTTPTimeout bounds remote fetches. Zero means no timeout, in which
	// case a stalled upstream blocks the caller until the request context
	// ends.
	HTTPTimeout time.Duration `yaml:"http_timeout" json:"http_timeout"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	Holidays HolidayConfig `yaml:"holidays" json:"holidays"`
	Weather  WeatherConfig `yaml:"weather" json:"weather"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health and /metrics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultDir returns ~/.deskcal, or ./.deskcal when the home directory is
// unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return defaultDirName
	}
	return filepath.Join(home, defaultDirName)
}

// DefaultPath is the config file used when --config is not given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Listen:    defaultListen,
		Timezone:  defaultTimezone,
		DataDir:   DefaultDir(),
		Theme:     theme.NameLight,
		LogLevel:  "info",
		BasicAuth: nil,
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDir()
	}
	if c.EventsFile == "" {
		c.EventsFile = filepath.Join(c.DataDir, "events.json")
	}
	if c.HolidayCacheFile == "" {
		c.HolidayCacheFile = filepath.Join(c.DataDir, "holidays.json")
	}
	switch strings.ToLower(c.Theme) {
	case theme.NameLight, theme.NameDark:
		c.Theme = strings.ToLower(c.Theme)
	default:
		c.Theme = theme.NameLight
	}
	if c.HTTPTimeout < 0 {
		c.HTTPTimeout = 0
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Holidays.URL == "" {
		c.Holidays.URL = holiday.DefaultURL
	}
	if c.Weather.URL == "" {
		c.Weather.URL = weather.DefaultURL
	}
	if c.Weather.Region == "" {
		c.Weather.Region = weather.DefaultRegion
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.PasswordHash == "") {
		c.BasicAuth = nil
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// HTTPClient returns the client used for remote sources.
func (c *Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.HTTPTimeout}
}

// Load loads configuration from the given YAML path and applies
// environment overrides on top. See LoadFile for the file behavior.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if cfg == nil {
		return nil, err
	}
	return ApplyEnv(cfg), err
}

// LoadFile loads configuration from the given YAML path without
// environment overrides. Use it for read-modify-Save cycles so overrides
// never end up in the file.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			// Even if save fails, return cfg with error so caller can decide.
			return cfg, Save(path, cfg)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// LoadDotEnv reads .env files into the process environment. Missing files
// are not an error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		appLog.Warn("failed to read .env", "err", err)
	}
}

// ApplyEnv overrides cfg with DESKCAL_* environment variables.
func ApplyEnv(cfg *Config) *Config {
	if v, ok := getEnv("DESKCAL_LISTEN"); ok {
		cfg.Listen = v
	}
	if v, ok := getEnv("DESKCAL_TIMEZONE"); ok {
		cfg.Timezone = v
	}
	if v, ok := getEnv("DESKCAL_DATA_DIR"); ok {
		// Derived paths follow the data dir unless set explicitly.
		if cfg.EventsFile == filepath.Join(cfg.DataDir, "events.json") {
			cfg.EventsFile = ""
		}
		if cfg.HolidayCacheFile == filepath.Join(cfg.DataDir, "holidays.json") {
			cfg.HolidayCacheFile = ""
		}
		cfg.DataDir = v
	}
	if v, ok := getEnv("DESKCAL_EVENTS_FILE"); ok {
		cfg.EventsFile = v
	}
	if v, ok := getEnv("DESKCAL_THEME"); ok {
		cfg.Theme = v
	}
	if v, ok := getEnv("DESKCAL_REFRESH"); ok {
		cfg.Refresh = v
	}
	if v, ok := getEnv("DESKCAL_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := getEnvDuration("DESKCAL_HTTP_TIMEOUT"); ok {
		cfg.HTTPTimeout = v
	}
	cfg.Normalize()
	return cfg
}

func getEnv(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	return v, v != ""
}

func getEnvDuration(name string) (time.Duration, bool) {
	raw, ok := getEnv(name)
	if !ok {
		return 0, false
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, true
	}
	// Bare integers are seconds.
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, true
	}
	appLog.Warn("ignoring invalid duration", "env", name, "value", raw)
	return 0, false
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".deskcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
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
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
