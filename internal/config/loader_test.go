package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"server": {
		"host": "0.0.0.0",
		"port": 9999,
		"api_key": "${{ .Env.HORIZONS_API_KEY }}",
		"retention": {
			"schedule": "30 3 * * *",
			"max_age": "48h"
		}
	},
	"remote": {
		"base_url": "https://horizons.example.com",
		"timeout": "5s"
	},
	"client": {
		"retention_age": "12h",
		"event_buffer": 16
	}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HORIZONS_API_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Server.APIKey != "test-key-123" {
		t.Errorf("expected api_key test-key-123, got %s", cfg.Server.APIKey)
	}
	if cfg.Server.Retention.Schedule != "30 3 * * *" {
		t.Errorf("expected schedule '30 3 * * *', got %q", cfg.Server.Retention.Schedule)
	}
	if cfg.Server.Retention.MaxAge.Duration() != 48*time.Hour {
		t.Errorf("expected max_age 48h, got %s", cfg.Server.Retention.MaxAge.Duration())
	}
	if cfg.Remote.BaseURL != "https://horizons.example.com" {
		t.Errorf("expected remote base_url, got %s", cfg.Remote.BaseURL)
	}
	if cfg.Remote.Timeout.Duration() != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.Remote.Timeout.Duration())
	}
	if cfg.Client.RetentionAge.Duration() != 12*time.Hour {
		t.Errorf("expected retention_age 12h, got %s", cfg.Client.RetentionAge.Duration())
	}
	if cfg.Client.EventBuffer != 16 {
		t.Errorf("expected event_buffer 16, got %d", cfg.Client.EventBuffer)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("expected default port 8787, got %d", cfg.Server.Port)
	}
	if cfg.Server.Retention.Schedule != "0 4 * * *" {
		t.Errorf("expected default schedule '0 4 * * *', got %q", cfg.Server.Retention.Schedule)
	}
	if cfg.Server.Retention.MaxAge.Duration() != 72*time.Hour {
		t.Errorf("expected default max_age 72h, got %s", cfg.Server.Retention.MaxAge.Duration())
	}
	if cfg.Remote.BaseURL != "http://127.0.0.1:8787" {
		t.Errorf("expected default base_url http://127.0.0.1:8787, got %s", cfg.Remote.BaseURL)
	}
	if cfg.Client.RetentionAge.Duration() != 24*time.Hour {
		t.Errorf("expected default retention_age 24h, got %s", cfg.Client.RetentionAge.Duration())
	}
	if cfg.Client.EventBuffer != 64 {
		t.Errorf("expected default event_buffer 64, got %d", cfg.Client.EventBuffer)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.jsonc"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("expected defaults for missing file, got port %d", cfg.Server.Port)
	}
}

func TestLoad_RemoteKeyFallsBackToServerKey(t *testing.T) {
	content := `{"server": {"api_key": "shared-key"}}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Remote.APIKey != "shared-key" {
		t.Errorf("expected remote api_key to fall back to server key, got %q", cfg.Remote.APIKey)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
