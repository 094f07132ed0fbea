package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses the engine's TOML config file, applies environment
// overrides, validates the result, and returns the resulting Config.
// Unknown keys are treated as fatal errors with "did you mean?" suggestions,
// mirroring the teacher's Load.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	ReadEnvOverrides().Apply(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully", "path", path, "table_count", len(cfg.TablesToSync))

	return cfg, nil
}

// LoadOrDefault loads path if it exists, and otherwise falls back to
// DefaultConfig with environment overrides applied — used by commands that
// can run against an unconfigured store (e.g. `rowsync config show`).
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		ReadEnvOverrides().Apply(cfg)

		return cfg, Validate(cfg)
	}

	return Load(path, logger)
}
