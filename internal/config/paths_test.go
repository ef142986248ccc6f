package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHorizonsPath_EnvOverride(t *testing.T) {
	t.Setenv(EnvRoot, "/srv/horizons")
	if got := HorizonsPath(); got != "/srv/horizons" {
		t.Errorf("HorizonsPath() = %q, want /srv/horizons", got)
	}
}

func TestHorizonsPath_DefaultsToHome(t *testing.T) {
	t.Setenv(EnvRoot, "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	want := filepath.Join(home, ".horizons")
	if got := HorizonsPath(); got != want {
		t.Errorf("HorizonsPath() = %q, want %q", got, want)
	}
}

func TestDerivedPaths(t *testing.T) {
	t.Setenv(EnvRoot, "/srv/horizons")
	cases := []struct {
		name string
		got  string
		file string
	}{
		{"config", ConfigPath(), "config.jsonc"},
		{"dotenv", DotenvPath(), ".env"},
		{"seed", SeedPath(), "seed.yaml"},
		{"heartbeat", HeartbeatPath(), "heartbeat.json"},
	}
	for _, c := range cases {
		want := filepath.Join("/srv/horizons", c.file)
		if c.got != want {
			t.Errorf("%s path = %q, want %q", c.name, c.got, want)
		}
	}
}
