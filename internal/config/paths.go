package config

import (
	"os"
	"path/filepath"
)

// EnvRoot overrides the data directory when set.
const EnvRoot = "HORIZONS_PATH"

// HorizonsPath returns the directory holding the config file, the sqlite
// database, the seed file, and the heartbeat file. $HORIZONS_PATH wins;
// otherwise ~/.horizons, or ./.horizons when the home directory is
// unknown.
func HorizonsPath() string {
	if root := os.Getenv(EnvRoot); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".horizons")
	}
	return filepath.Join(home, ".horizons")
}

func inRoot(name string) string {
	return filepath.Join(HorizonsPath(), name)
}

// ConfigPath returns the JSONC config file location.
func ConfigPath() string { return inRoot("config.jsonc") }

// DotenvPath returns the .env file location.
func DotenvPath() string { return inRoot(".env") }

// SeedPath returns the horizon seed file location.
func SeedPath() string { return inRoot("seed.yaml") }

// HeartbeatPath returns the authority liveness file location.
func HeartbeatPath() string { return inRoot("heartbeat.json") }
