package config

import (
	"fmt"
	"os"
	"path/filepath"

	"wabridge/internal/models"
	"wabridge/internal/security"

	"github.com/caarlos0/env/v11"
)

var (
	ErrInvalidPort       = models.ConfigError{Message: "PORT must be between 1 and 65535"}
	ErrInvalidSessionDir = models.ConfigError{Message: "SESSION_DIR is not a usable directory"}
)

// Load reads configuration from the environment and prepares the session
// directory. The process cannot run without a writable session directory, so
// failures here are fatal to startup.
func Load() (*models.Config, error) {
	var cfg models.Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.SessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &cfg, nil
}

func validate(c *models.Config) error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}

	if err := security.ValidateStorageDir(c.SessionDir); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSessionDir, err)
	}
	c.SessionDir = filepath.Clean(c.SessionDir)

	return nil
}
