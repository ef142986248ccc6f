package server

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"horizons/internal/model"
)

// seedFile is the YAML shape of a horizon seed file.
type seedFile struct {
	Horizons []struct {
		Name  string `yaml:"name"`
		Color string `yaml:"color"`
	} `yaml:"horizons"`
}

// defaultSeed is used when no seed file exists.
var defaultSeed = []model.Horizon{
	{Name: "Sacred Technology", Color: "#38b5b5"},
	{Name: "Sanctuary Build", Color: "#4a9eff"},
	{Name: "Family Support", Color: "#9b87f5"},
	{Name: "Home Systems", Color: "#f59b87"},
}

// SeedDefaults creates the starter horizons when the database holds none.
// path may name a YAML seed file; when it is empty or missing the built-in
// defaults are used. Seeding an already-populated database is a no-op.
func (s *Store) SeedDefaults(path string) error {
	n, err := s.CountHorizons()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	seeds := defaultSeed
	if path != "" {
		if loaded, err := loadSeedFile(path); err != nil {
			slog.Warn("seed file unreadable, using built-in defaults", "path", path, "error", err)
		} else if len(loaded) > 0 {
			seeds = loaded
		}
	}

	for i, h := range seeds {
		h.Active = true
		h.SortOrder = i
		if h.Color == "" {
			h.Color = model.DefaultHorizonColor
		}
		if _, err := s.CreateHorizon(h); err != nil {
			return fmt.Errorf("seed horizon %q: %w", h.Name, err)
		}
	}
	slog.Info("seeded default horizons", "count", len(seeds))
	return nil
}

func loadSeedFile(path string) ([]model.Horizon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	out := make([]model.Horizon, 0, len(f.Horizons))
	for _, h := range f.Horizons {
		if h.Name == "" {
			continue
		}
		out = append(out, model.Horizon{Name: h.Name, Color: h.Color})
	}
	return out, nil
}
