package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded is a parsed config together with where it came from.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load reads the config file. A missing default file falls back to defaults;
// a missing file the user named is an error.
func Load(explicitPath string) (Loaded, error) {
	path, named, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !named:
		return Loaded{
			Path:     path,
			Config:   Default(),
			Warnings: []Warning{{Message: fmt.Sprintf("config file %q not found; using defaults", path)}},
		}, nil
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, warnings, err := Parse(content, Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return Loaded{Path: path, Config: cfg, Warnings: warnings, Exists: true}, nil
}
