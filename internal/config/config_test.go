package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
api:
  base_url: https://api.example.test
  timeout_sec: 30

realtime:
  ws_url: wss://chat.example.test/ws
  dial_timeout_sec: 5

session:
  file: /tmp/helpline/session.json

log:
  mode: prod

relay:
  port: 9000
  welcome_text: "Welcome to support"
  database:
    driver: mysql
    host: 10.0.0.5
    port: 3307
    name: support
    user: relay
  rate_limit:
    per_sec: 2.5
    burst: 4
  retention:
    cron: "0 3 * * *"
    max_age_hours: 720
  notify_command: "notify-send Support '{{.Text}}'"
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Relay.NotifyCommand != "notify-send Support '{{.Text}}'" {
		t.Errorf("Relay.NotifyCommand = %q", cfg.Relay.NotifyCommand)
	}
	if cfg.API.BaseURL != "https://api.example.test" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://api.example.test")
	}
	if cfg.APITimeout() != 30*time.Second {
		t.Errorf("APITimeout() = %v, want 30s", cfg.APITimeout())
	}
	if cfg.Realtime.WSURL != "wss://chat.example.test/ws" {
		t.Errorf("Realtime.WSURL = %q, want wss://chat.example.test/ws", cfg.Realtime.WSURL)
	}
	if cfg.DialTimeout() != 5*time.Second {
		t.Errorf("DialTimeout() = %v, want 5s", cfg.DialTimeout())
	}
	if cfg.Session.File != "/tmp/helpline/session.json" {
		t.Errorf("Session.File = %q, want /tmp/helpline/session.json", cfg.Session.File)
	}
	if cfg.Log.Mode != "prod" {
		t.Errorf("Log.Mode = %q, want prod", cfg.Log.Mode)
	}

	r := cfg.Relay
	if r.Port != 9000 {
		t.Errorf("Relay.Port = %d, want 9000", r.Port)
	}
	if r.WelcomeText != "Welcome to support" {
		t.Errorf("Relay.WelcomeText = %q, want %q", r.WelcomeText, "Welcome to support")
	}
	if r.Database.Driver != "mysql" || r.Database.Host != "10.0.0.5" || r.Database.Port != 3307 {
		t.Errorf("Relay.Database = %+v, want mysql 10.0.0.5:3307", r.Database)
	}
	if r.Database.User != "relay" || r.Database.Name != "support" {
		t.Errorf("Relay.Database user/name = %q/%q, want relay/support", r.Database.User, r.Database.Name)
	}
	if r.RateLimit.PerSec != 2.5 || r.RateLimit.Burst != 4 {
		t.Errorf("Relay.RateLimit = %+v, want 2.5/4", r.RateLimit)
	}
	if r.Retention.Cron != "0 3 * * *" {
		t.Errorf("Relay.Retention.Cron = %q, want %q", r.Retention.Cron, "0 3 * * *")
	}
	if r.Retention.MaxAge() != 720*time.Hour {
		t.Errorf("Relay.Retention.MaxAge() = %v, want 720h", r.Retention.MaxAge())
	}
}

func TestParse_Empty_AppliesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.API.TimeoutSec != 15 {
		t.Errorf("API.TimeoutSec = %d, want 15 (default)", cfg.API.TimeoutSec)
	}
	if cfg.Realtime.DialTimeoutSec != 10 {
		t.Errorf("Realtime.DialTimeoutSec = %d, want 10 (default)", cfg.Realtime.DialTimeoutSec)
	}
	if cfg.Session.File == "" {
		t.Error("Session.File should default to a non-empty path")
	}
	if cfg.Log.Mode != "dev" {
		t.Errorf("Log.Mode = %q, want dev (default)", cfg.Log.Mode)
	}
	if cfg.Relay.Port != 8090 {
		t.Errorf("Relay.Port = %d, want 8090 (default)", cfg.Relay.Port)
	}
	if cfg.Relay.WelcomeText != "Hi, how can we help?" {
		t.Errorf("Relay.WelcomeText = %q, want default greeting", cfg.Relay.WelcomeText)
	}
	if cfg.Relay.Database.Driver != "sqlite" || cfg.Relay.Database.Path != "helpline.db" {
		t.Errorf("Relay.Database = %+v, want sqlite helpline.db", cfg.Relay.Database)
	}
	if cfg.Relay.RateLimit.PerSec != 5 || cfg.Relay.RateLimit.Burst != 10 {
		t.Errorf("Relay.RateLimit = %+v, want 5/10", cfg.Relay.RateLimit)
	}
	if cfg.Relay.Retention.MaxAge() != 0 {
		t.Errorf("Relay.Retention.MaxAge() = %v, want 0 (off)", cfg.Relay.Retention.MaxAge())
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("relay:\n  database:\n    driver: mysql\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db := cfg.Relay.Database
	if db.Host != "127.0.0.1" || db.Port != 3306 || db.User != "root" || db.Name != "helpline" {
		t.Errorf("mysql defaults = %+v", db)
	}
	if db.Path != "" {
		t.Errorf("Path = %q, want empty for mysql", db.Path)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("HELPLINE_API_URL", "http://env-api")
	t.Setenv("HELPLINE_WS_URL", "ws://env-ws/ws")
	t.Setenv("HELPLINE_SESSION_FILE", "/env/session.json")
	t.Setenv("HELPLINE_LOG_MODE", "prod")
	t.Setenv("HELPLINE_RELAY_DSN", "user@tcp(db:3306)/x")
	t.Setenv("HELPLINE_RELAY_AGENT_TOKEN", "agent-secret")

	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.API.BaseURL != "http://env-api" {
		t.Errorf("API.BaseURL = %q, want env override", cfg.API.BaseURL)
	}
	if cfg.Realtime.WSURL != "ws://env-ws/ws" {
		t.Errorf("Realtime.WSURL = %q, want env override", cfg.Realtime.WSURL)
	}
	if cfg.Session.File != "/env/session.json" {
		t.Errorf("Session.File = %q, want env override", cfg.Session.File)
	}
	if cfg.Relay.Database.DSN != "user@tcp(db:3306)/x" {
		t.Errorf("Relay.Database.DSN = %q, want env override", cfg.Relay.Database.DSN)
	}
	if cfg.Relay.AgentToken != "agent-secret" {
		t.Errorf("Relay.AgentToken = %q, want env override", cfg.Relay.AgentToken)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad ws scheme",
			yaml:    "realtime:\n  ws_url: http://x/ws\n",
			wantErr: "must use ws:// or wss://",
		},
		{
			name:    "bad log mode",
			yaml:    "log:\n  mode: verbose\n",
			wantErr: "log.mode",
		},
		{
			name:    "bad driver",
			yaml:    "relay:\n  database:\n    driver: postgres\n",
			wantErr: "relay.database.driver",
		},
		{
			name:    "port out of range",
			yaml:    "relay:\n  port: 70000\n",
			wantErr: "relay.port",
		},
		{
			name:    "negative timeout",
			yaml:    "api:\n  timeout_sec: -1\n",
			wantErr: "api.timeout_sec",
		},
		{
			name:    "cron without max age",
			yaml:    "relay:\n  retention:\n    cron: \"0 3 * * *\"\n",
			wantErr: "requires relay.retention.max_age_hours",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("api: [unclosed"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse prefix", err.Error())
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "helpline.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Relay.Port != 9000 {
		t.Errorf("Relay.Port = %d, want 9000", cfg.Relay.Port)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Relay.Port != 8090 {
		t.Errorf("Relay.Port = %d, want 8090 (default)", cfg.Relay.Port)
	}
}
