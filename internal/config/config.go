package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that start/end days are anchored in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// PreviewCount is how many upcoming dates a preview lists.
	PreviewCount int `yaml:"preview_count" json:"preview_count"`

	// DateFormat is a date-fns style pattern for preview dates.
	DateFormat string `yaml:"date_format" json:"date_format"`

	// MaxSessions bounds the number of live configurator sessions.
	MaxSessions int `yaml:"max_sessions" json:"max_sessions"`

	// SessionTTLMinutes is how long an idle session is kept.
	SessionTTLMinutes int `yaml:"session_ttl_minutes" json:"session_ttl_minutes"`

	// SessionSweep is the cron schedule for dropping idle sessions.
	SessionSweep string `yaml:"session_sweep" json:"session_sweep"`

	// AllowedOrigins lists CORS origins for the API.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "UTC"
	defaultPreviewCount = 6
	defaultDateFormat   = "yyyy-MM-dd"
	defaultMaxSessions  = 1024
	defaultSessionTTL   = 30
	defaultSessionSweep = "@every 5m"
	defaultLogLevel     = "info"
	maxPreviewCount     = 100
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            defaultListen,
		Timezone:          defaultTimezone,
		PreviewCount:      defaultPreviewCount,
		DateFormat:        defaultDateFormat,
		MaxSessions:       defaultMaxSessions,
		SessionTTLMinutes: defaultSessionTTL,
		SessionSweep:      defaultSessionSweep,
		AllowedOrigins:    []string{"http://localhost:8080", "http://127.0.0.1:8080"},
		LogLevel:          defaultLogLevel,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.PreviewCount <= 0 {
		c.PreviewCount = defaultPreviewCount
	}
	if c.PreviewCount > maxPreviewCount {
		c.PreviewCount = maxPreviewCount
	}
	if strings.TrimSpace(c.DateFormat) == "" {
		c.DateFormat = defaultDateFormat
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = defaultMaxSessions
	}
	if c.SessionTTLMinutes <= 0 {
		c.SessionTTLMinutes = defaultSessionTTL
	}
	if c.SessionSweep == "" {
		c.SessionSweep = defaultSessionSweep
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{}
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}
}

// SessionTTL is SessionTTLMinutes as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Location resolves Timezone, falling back to UTC on unknown names.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, err
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides (see ApplyEnv) are applied last in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// ApplyEnv loads a .env file from the working directory if present and
// applies RECURCAL_* overrides:
//
//	RECURCAL_LISTEN, RECURCAL_TIMEZONE, RECURCAL_PREVIEW_COUNT,
//	RECURCAL_LOG_LEVEL, RECURCAL_BASIC_AUTH_USER, RECURCAL_BASIC_AUTH_PASSWORD
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v := strings.TrimSpace(os.Getenv("RECURCAL_LISTEN")); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("RECURCAL_TIMEZONE")); v != "" {
		c.Timezone = v
	}
	if v := strings.TrimSpace(os.Getenv("RECURCAL_PREVIEW_COUNT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PreviewCount = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RECURCAL_LOG_LEVEL")); v != "" {
		c.LogLevel = v
	}
	user := strings.TrimSpace(os.Getenv("RECURCAL_BASIC_AUTH_USER"))
	pass := os.Getenv("RECURCAL_BASIC_AUTH_PASSWORD")
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
	c.Normalize()
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

	tmp, err := os.CreateTemp(dir, ".recurcal-config-*.tmp")
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
