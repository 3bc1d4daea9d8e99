package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load reads the configuration file at path. A missing file yields the
// defaults, matching a fresh store.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, NewIOError(path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, NewParseError(path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, NewInvalidError(path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories
// as needed.
func Save(path string, cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return NewInvalidError(path, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return NewParseError(path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return NewIOError(path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return NewIOError(path, err)
	}
	return nil
}

// Reset replaces the configuration file with the defaults.
func Reset(path string) error {
	return Save(path, Default())
}
