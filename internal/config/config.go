// Package config provides YAML-based configuration loading for helpline.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level helpline configuration, loaded from helpline.yaml.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
	Relay    RelayConfig    `yaml:"relay"`
}

// APIConfig points at the backend REST surface.
type APIConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// RealtimeConfig holds the chat transport endpoint.
type RealtimeConfig struct {
	WSURL          string `yaml:"ws_url"`
	DialTimeoutSec int    `yaml:"dial_timeout_sec"`
}

// SessionConfig locates the persisted credential and profile snapshot.
type SessionConfig struct {
	File string `yaml:"file"`
}

// LogConfig selects the logger flavour ("dev" or "prod").
type LogConfig struct {
	Mode string `yaml:"mode"`
}

// RelayConfig configures the reference realtime relay server.
type RelayConfig struct {
	Port        int             `yaml:"port"`
	WelcomeText string          `yaml:"welcome_text"`
	Database    DatabaseConfig  `yaml:"database"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Retention   RetentionConfig `yaml:"retention"`
	// AgentToken, when set, is required as a bearer credential on agent pushes.
	AgentToken string `yaml:"agent_token"`
	// NotifyCommand runs for every customer message; see messaging.Notify.
	NotifyCommand string `yaml:"notify_command"`
}

// DatabaseConfig holds connection settings for the relay history store.
// Driver is "sqlite" (Path) or "mysql" (Host, Port, Name).
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
	User   string `yaml:"user"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// RateLimitConfig bounds inbound chat messages per connection.
type RateLimitConfig struct {
	PerSec float64 `yaml:"per_sec"`
	Burst  int     `yaml:"burst"`
}

// RetentionConfig controls periodic purging of relay history.
type RetentionConfig struct {
	Cron        string `yaml:"cron"`
	MaxAgeHours int    `yaml:"max_age_hours"`
}

// APITimeout returns the REST client timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// DialTimeout returns the realtime dial timeout.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Realtime.DialTimeoutSec) * time.Second
}

// MaxAge returns the relay retention window, or 0 when retention is off.
func (r RetentionConfig) MaxAge() time.Duration {
	return time.Duration(r.MaxAgeHours) * time.Hour
}

// Load reads a YAML config file from path and returns a validated Config.
// A missing file yields the defaults, so the CLI works with env vars alone.
// A .env file next to the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			data = nil
		} else {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets HELPLINE_* variables win over the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HELPLINE_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("HELPLINE_WS_URL"); v != "" {
		c.Realtime.WSURL = v
	}
	if v := os.Getenv("HELPLINE_SESSION_FILE"); v != "" {
		c.Session.File = v
	}
	if v := os.Getenv("HELPLINE_LOG_MODE"); v != "" {
		c.Log.Mode = v
	}
	if v := os.Getenv("HELPLINE_RELAY_DSN"); v != "" {
		c.Relay.Database.DSN = v
	}
	if v := os.Getenv("HELPLINE_RELAY_AGENT_TOKEN"); v != "" {
		c.Relay.AgentToken = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.API.TimeoutSec == 0 {
		c.API.TimeoutSec = 15
	}
	if c.Realtime.DialTimeoutSec == 0 {
		c.Realtime.DialTimeoutSec = 10
	}
	if c.Session.File == "" {
		c.Session.File = defaultSessionFile()
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}
	if c.Relay.Port == 0 {
		c.Relay.Port = 8090
	}
	if c.Relay.WelcomeText == "" {
		c.Relay.WelcomeText = "Hi, how can we help?"
	}
	if c.Relay.Database.Driver == "" {
		c.Relay.Database.Driver = "sqlite"
	}
	switch c.Relay.Database.Driver {
	case "sqlite":
		if c.Relay.Database.Path == "" {
			c.Relay.Database.Path = "helpline.db"
		}
	case "mysql":
		if c.Relay.Database.Host == "" {
			c.Relay.Database.Host = "127.0.0.1"
		}
		if c.Relay.Database.Port == 0 {
			c.Relay.Database.Port = 3306
		}
		if c.Relay.Database.User == "" {
			c.Relay.Database.User = "root"
		}
		if c.Relay.Database.Name == "" {
			c.Relay.Database.Name = "helpline"
		}
	}
	if c.Relay.RateLimit.PerSec == 0 {
		c.Relay.RateLimit.PerSec = 5
	}
	if c.Relay.RateLimit.Burst == 0 {
		c.Relay.RateLimit.Burst = 10
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.API.TimeoutSec < 0 {
		errs = append(errs, "api.timeout_sec must not be negative")
	}
	if c.Realtime.DialTimeoutSec < 0 {
		errs = append(errs, "realtime.dial_timeout_sec must not be negative")
	}
	if c.Realtime.WSURL != "" && !strings.HasPrefix(c.Realtime.WSURL, "ws://") && !strings.HasPrefix(c.Realtime.WSURL, "wss://") {
		errs = append(errs, fmt.Sprintf("realtime.ws_url %q must use ws:// or wss://", c.Realtime.WSURL))
	}
	switch c.Log.Mode {
	case "dev", "prod", "production", "development":
	default:
		errs = append(errs, fmt.Sprintf("log.mode %q must be dev or prod", c.Log.Mode))
	}
	switch c.Relay.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("relay.database.driver %q must be sqlite or mysql", c.Relay.Database.Driver))
	}
	if c.Relay.Port < 0 || c.Relay.Port > 65535 {
		errs = append(errs, fmt.Sprintf("relay.port %d out of range", c.Relay.Port))
	}
	if c.Relay.RateLimit.PerSec < 0 {
		errs = append(errs, "relay.rate_limit.per_sec must not be negative")
	}
	if c.Relay.Retention.MaxAgeHours < 0 {
		errs = append(errs, "relay.retention.max_age_hours must not be negative")
	}
	if c.Relay.Retention.Cron != "" && c.Relay.Retention.MaxAgeHours == 0 {
		errs = append(errs, "relay.retention.cron requires relay.retention.max_age_hours")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// defaultSessionFile returns ~/.helpline/session.json, or a relative path
// when the home directory cannot be resolved.
func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".helpline-session.json"
	}
	return filepath.Join(home, ".helpline", "session.json")
}
