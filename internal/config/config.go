package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen          = "127.0.0.1:8080"
	DefaultTimezone        = "Local"
	DefaultDatabasePath    = "./var/wallcal.db"
	DefaultICSCacheDir     = "./var/ics-cache"
	DefaultReminderCron    = "* * * * *"
	DefaultLookahead       = 10080
	DefaultMaxOccurrences  = 5000
	DefaultExpandCacheTTL  = 60
	DefaultRateLimitPerSec = 20
	DefaultRateLimitBurst  = 40
	DefaultPushTTL         = 86400
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// PushConfig is the VAPID identity for Web Push reminders. Keys are
// generated on first run when left empty.
type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key" json:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key" json:"-"`
	// Subject is a mailto: or https: contact sent to push services.
	Subject string `yaml:"subject" json:"subject"`
	// TTL in seconds for undelivered pushes.
	TTL int `yaml:"ttl" json:"ttl"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA home zone. Date grouping and reminders read
	// wall-clock times in it. "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	DatabasePath string `yaml:"database_path" json:"database_path"`
	ICSCacheDir  string `yaml:"ics_cache_dir" json:"ics_cache_dir"`
	LogLevel     string `yaml:"log_level" json:"log_level"`

	// ReminderCron is a five-field cron expression for reminder scans.
	ReminderCron             string `yaml:"reminder_cron" json:"reminder_cron"`
	ReminderLookaheadMinutes int    `yaml:"reminder_lookahead_minutes" json:"reminder_lookahead_minutes"`

	MaxOccurrencesPerDefinition int `yaml:"max_occurrences_per_definition" json:"max_occurrences_per_definition"`
	ExpandCacheTTLSeconds       int `yaml:"expand_cache_ttl_seconds" json:"expand_cache_ttl_seconds"`

	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" json:"rate_limit_burst"`

	// WebSocketOrigins lists extra browser origin host patterns (path.Match
	// syntax, e.g. "calendar.example.com" or "*.lan:8080") allowed to open
	// /ws. Same-host origins and non-browser clients are always accepted.
	WebSocketOrigins []string `yaml:"websocket_origins,omitempty" json:"websocket_origins,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Push PushConfig `yaml:"push" json:"push"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing or invalid values with defaults so partially
// filled configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "sunday":
		c.WeekStart = "sunday"
	default:
		c.WeekStart = "monday"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = DefaultICSCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ReminderCron == "" {
		c.ReminderCron = DefaultReminderCron
	}
	if c.ReminderLookaheadMinutes <= 0 {
		c.ReminderLookaheadMinutes = DefaultLookahead
	}
	if c.MaxOccurrencesPerDefinition <= 0 {
		c.MaxOccurrencesPerDefinition = DefaultMaxOccurrences
	}
	if c.ExpandCacheTTLSeconds <= 0 {
		c.ExpandCacheTTLSeconds = DefaultExpandCacheTTL
	}
	if c.RateLimitPerSec <= 0 {
		c.RateLimitPerSec = DefaultRateLimitPerSec
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = DefaultRateLimitBurst
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
	if c.Push.Subject == "" {
		c.Push.Subject = "mailto:admin@localhost"
	}
	if c.Push.TTL <= 0 {
		c.Push.TTL = DefaultPushTTL
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cron.ParseStandard(c.ReminderCron); err != nil {
		errs = append(errs, fmt.Errorf("reminder_cron %q: %w", c.ReminderCron, err))
	}
	for _, p := range c.WebSocketOrigins {
		if _, err := path.Match(p, ""); err != nil {
			errs = append(errs, fmt.Errorf("websocket_origins %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) ReminderLookahead() time.Duration {
	return time.Duration(c.ReminderLookaheadMinutes) * time.Minute
}

func (c *Config) ExpandCacheTTL() time.Duration {
	return time.Duration(c.ExpandCacheTTLSeconds) * time.Second
}

// HasVAPIDKeys reports whether Web Push can sign messages.
func (c *Config) HasVAPIDKeys() bool {
	return c.Push.VAPIDPublicKey != "" && c.Push.VAPIDPrivateKey != ""
}

// Load loads configuration from the given YAML path.
//
// When the file does not exist a default config is written there with
// 0600 permissions and returned. Otherwise the YAML is read and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// the caller decides whether an unsaved default is usable
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
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

	tmp, err := os.CreateTemp(dir, ".wallcal-config-*.tmp")
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

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
