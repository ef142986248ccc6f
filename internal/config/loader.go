package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }}
// templates, unmarshals it into Config, and applies defaults. A missing
// file yields the pure defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		// Expand environment variable templates (before standardizing,
		// since templates are in strings)
		expanded := expandEnvTemplates(string(data))

		std, err := hujson.Standardize([]byte(expanded))
		if err != nil {
			return nil, fmt.Errorf("standardize config: %w", err)
		}
		if err := json.Unmarshal(std, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.DBPath == "" {
		cfg.Server.DBPath = filepath.Join(HorizonsPath(), "horizons.db")
	}
	if cfg.Server.SeedPath == "" {
		cfg.Server.SeedPath = SeedPath()
	}
	if cfg.Server.Retention.Schedule == "" {
		cfg.Server.Retention.Schedule = "0 4 * * *"
	}
	if cfg.Server.Retention.MaxAge <= 0 {
		cfg.Server.Retention.MaxAge = Duration(72 * time.Hour)
	}
	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = Duration(10 * time.Second)
	}
	if cfg.Remote.APIKey == "" {
		cfg.Remote.APIKey = cfg.Server.APIKey
	}
	if cfg.Client.RetentionAge <= 0 {
		cfg.Client.RetentionAge = Duration(24 * time.Hour)
	}
	if cfg.Client.EventBuffer <= 0 {
		cfg.Client.EventBuffer = 64
	}
}
