package config

import (
	"fmt"
	"strings"

	"vtuber/internal/logging"
)

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // json, text
	File       string          `yaml:"file"`       // empty means stderr
	Categories map[string]bool `yaml:"categories"` // per-category toggles

	// AuditFile receives one JSON line per bus event; empty disables it.
	AuditFile string `yaml:"audit_file"`
	// AuditContent keeps conversation text in the audit trail instead of lengths.
	AuditContent bool `yaml:"audit_content"`
}

func (c LoggingConfig) validate() error {
	switch strings.ToLower(c.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Level)
	}
	switch c.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Format)
	}
	return nil
}

// IsCategoryEnabled returns whether a category is enabled. Categories not
// listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	enabled, exists := c.Categories[category]
	return !exists || enabled
}

// LoggerConfig converts the logging section. verbose forces debug level.
func (c *Config) LoggerConfig(verbose bool) logging.Config {
	level := c.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.Config{
		Level:      level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		Categories: c.Logging.Categories,
	}
}
