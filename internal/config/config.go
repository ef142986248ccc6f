package config

import "time"

// Config is the root configuration for Horizons.
type Config struct {
	Server ServerConfig `json:"server"`
	Remote RemoteConfig `json:"remote"`
	Client ClientConfig `json:"client"`
}

// ServerConfig holds the authority server settings.
type ServerConfig struct {
	Host      string          `json:"host"`
	Port      int             `json:"port"`
	DBPath    string          `json:"db_path"`
	APIKey    string          `json:"api_key,omitempty"` // Direct key or ${{ .Env.VAR }} template
	SeedPath  string          `json:"seed_path,omitempty"`
	Retention RetentionConfig `json:"retention"`
}

// RetentionConfig configures the server-side purge of completed tasks.
type RetentionConfig struct {
	Schedule string   `json:"schedule"` // 5-field cron expression
	MaxAge   Duration `json:"max_age"`
}

// RemoteConfig tells the sync engine where the authority lives.
type RemoteConfig struct {
	BaseURL string   `json:"base_url"`
	APIKey  string   `json:"api_key,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

// ClientConfig holds the sync engine settings.
type ClientConfig struct {
	RetentionAge Duration `json:"retention_age,omitempty"` // load-time filter for completed tasks
	EventBuffer  int      `json:"event_buffer,omitempty"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
