package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default configuration should validate, got %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.WebSocket.ReadTimeout <= cfg.WebSocket.PingInterval {
		t.Error("Default read timeout must exceed the ping interval")
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.HTTP.Port = 0 }},
		{"oversized port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"negative db timeout", func(c *Config) { c.Database.Timeout = -time.Second }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero rate limit", func(c *Config) { c.Router.EventsPerMinute = 0 }},
		{"missing http section", func(c *Config) { c.HTTP = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation to fail")
			}
		})
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("CODESHARE_HTTP_PORT", "9191")
	t.Setenv("CODESHARE_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("CODESHARE_WEBSOCKET_PING_INTERVAL", "10s")
	t.Setenv("CODESHARE_EVENTS_PER_MINUTE", "99")
	t.Setenv("CODESHARE_RESET_SECRET", "hush")

	cfg := LoadFromEnv()
	if cfg.HTTP.Port != 9191 {
		t.Errorf("Expected port 9191, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Expected env database path, got %s", cfg.Database.Path)
	}
	if cfg.WebSocket.PingInterval != 10*time.Second {
		t.Errorf("Expected 10s ping interval, got %v", cfg.WebSocket.PingInterval)
	}
	if cfg.Router.EventsPerMinute != 99 {
		t.Errorf("Expected 99 events/min, got %d", cfg.Router.EventsPerMinute)
	}
	if cfg.Reset.Secret != "hush" {
		t.Error("Expected reset secret from environment")
	}
}

func TestLoadFromEnv_IgnoresGarbage(t *testing.T) {
	t.Setenv("CODESHARE_HTTP_PORT", "not-a-port")
	cfg := LoadFromEnv()
	if cfg.HTTP.Port != 8080 {
		t.Errorf("Unparseable value should keep the default, got %d", cfg.HTTP.Port)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"http": {"port": 3000, "read_timeout": "15s"},
		"database": {"path": "/tmp/file.db"},
		"websocket": {"ping_interval": "20s", "read_timeout": "45s"},
		"router": {"events_per_minute": 500}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.HTTP.Port != 3000 {
		t.Errorf("Expected port 3000, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeout != 15*time.Second {
		t.Errorf("Expected 15s read timeout, got %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.Database.Path != "/tmp/file.db" {
		t.Errorf("Expected file database path, got %s", cfg.Database.Path)
	}
	// Unspecified fields keep their defaults.
	if cfg.HTTP.WriteTimeout != 30*time.Second {
		t.Errorf("Expected default write timeout, got %v", cfg.HTTP.WriteTimeout)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestLoadFromFile_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": -4}}`), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	// Negative port is ignored as "unset", so this still validates; a corrupt
	// body must not.
	if _, err := LoadFromFile(path); err != nil {
		t.Errorf("Negative port should fall back to default, got %v", err)
	}

	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestLoadConfigWithPrecedence_FileWins(t *testing.T) {
	t.Setenv("CODESHARE_HTTP_PORT", "9000")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"http": {"port": 3000}}`), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg := LoadConfigWithPrecedence(path)
	if cfg.HTTP.Port != 3000 {
		t.Errorf("File should take precedence over environment, got %d", cfg.HTTP.Port)
	}

	// No file: environment wins.
	cfg = LoadConfigWithPrecedence("")
	if cfg.HTTP.Port != 9000 {
		t.Errorf("Environment should apply without a file, got %d", cfg.HTTP.Port)
	}
}
