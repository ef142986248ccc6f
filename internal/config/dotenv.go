package config

import (
	"fmt"
	"os"
	"strings"
)

// LoadDotenv applies KEY=VALUE pairs from the file at path to the process
// environment. Variables that are already set keep their value, so the file
// supplies defaults (typically HORIZONS_API_KEY for a client talking to a
// shared authority) rather than overrides. A missing file is not an error.
func LoadDotenv(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		val = stripQuotes(strings.TrimSpace(val))

		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, val)
		}
	}
	return nil
}

// stripQuotes removes a matching pair of surrounding single or double
// quotes.
func stripQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	if c := s[0]; (c == '"' || c == '\'') && s[len(s)-1] == c {
		return s[1 : len(s)-1]
	}
	return s
}
