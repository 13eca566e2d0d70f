package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// VisionConfig holds settings for the vision-language model collaborator.
type VisionConfig struct {
	// APIKey authenticates against the generative API. The
	// SNAPCAL_API_KEY environment variable overrides it.
	APIKey string `yaml:"api_key" json:"api_key"`
	// Model is the model identifier, e.g. "gemini-2.0-flash".
	Model string `yaml:"model" json:"model"`
	// BaseURL overrides the API endpoint; empty means the public one.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Instruction replaces the built-in extraction prompt when non-empty.
	Instruction string `yaml:"instruction" json:"instruction"`
}

// StoreConfig describes the local calendar store.
type StoreConfig struct {
	// DSN is the SQLite database path/DSN.
	DSN string `yaml:"dsn" json:"dsn"`
	// Calendar is the default calendar name events are written into.
	Calendar string `yaml:"calendar" json:"calendar"`
}

// ExportConfig holds ICS export settings and the materialization policy
// knobs. The durations are business-policy values, not parser behavior.
type ExportConfig struct {
	// ICSPath is the default merge-export target file.
	ICSPath string `yaml:"ics_path" json:"ics_path"`
	// DefaultDurationMinutes is the end-time fallback for timed events
	// with no usable end.
	DefaultDurationMinutes int `yaml:"default_duration_minutes" json:"default_duration_minutes"`
	// AllDaySpanDays is the exclusive-end offset for all-day events.
	AllDaySpanDays int `yaml:"all_day_span_days" json:"all_day_span_days"`
}

// InboxConfig configures the optional watch mode that scans a directory
// of captured images on a cron schedule.
type InboxConfig struct {
	Dir string `yaml:"dir" json:"dir"`
	// ProcessedDir receives images after a successful run. Defaults to
	// <dir>/processed.
	ProcessedDir string `yaml:"processed_dir" json:"processed_dir"`
	// Schedule is a cron-style string, e.g. "*/5 * * * *".
	Schedule string `yaml:"schedule" json:"schedule"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API server.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used to resolve naive date/times
	// coming out of the model (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is "debug", "info" or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	Vision VisionConfig `yaml:"vision" json:"vision"`
	Store  StoreConfig  `yaml:"store" json:"store"`
	Export ExportConfig `yaml:"export" json:"export"`
	Inbox  InboxConfig  `yaml:"inbox" json:"inbox"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "Asia/Seoul",
		LogLevel: "info",
		Vision: VisionConfig{
			Model: "gemini-2.0-flash",
		},
		Store: StoreConfig{
			DSN:      "snapcal.db",
			Calendar: "snapcal",
		},
		Export: ExportConfig{
			ICSPath:                "snapcal.ics",
			DefaultDurationMinutes: 60,
			AllDaySpanDays:         1,
		},
		Inbox: InboxConfig{
			Schedule: "*/5 * * * *",
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Seoul"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Vision.Model == "" {
		c.Vision.Model = "gemini-2.0-flash"
	}
	if key := os.Getenv("SNAPCAL_API_KEY"); key != "" {
		c.Vision.APIKey = key
	}
	if c.Store.DSN == "" {
		c.Store.DSN = "snapcal.db"
	}
	if c.Store.Calendar == "" {
		c.Store.Calendar = "snapcal"
	}
	if c.Export.ICSPath == "" {
		c.Export.ICSPath = "snapcal.ics"
	}
	if c.Export.DefaultDurationMinutes <= 0 {
		c.Export.DefaultDurationMinutes = 60
	}
	if c.Export.AllDaySpanDays <= 0 {
		c.Export.AllDaySpanDays = 1
	}
	if c.Inbox.Schedule == "" {
		c.Inbox.Schedule = "*/5 * * * *"
	}
	if c.Inbox.ProcessedDir == "" && c.Inbox.Dir != "" {
		c.Inbox.ProcessedDir = filepath.Join(c.Inbox.Dir, "processed")
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there (parent
// directory created as needed, 0600 perms) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			cfg.Normalize()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
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

// Save writes the configuration to path: parent dir 0700, atomic write
// via temp file + rename, final perms 0600 (the file can hold an API key).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".snapcal-config-*.tmp")
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

// Location resolves the configured timezone, falling back to time.Local
// for empty or invalid names.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
