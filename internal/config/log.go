package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max-size-mb"`
	MaxBackups int    `mapstructure:"max-backups"`
	MaxAgeDays int    `mapstructure:"max-age-days"`
	Compress   bool   `mapstructure:"compress"`
}

func (cfg *LogConfig) Validate() error {
	if cfg.Level == "" {
		cfg.Level = zerolog.InfoLevel.String()
	}
	if _, err := zerolog.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	switch cfg.Format {
	case "":
		cfg.Format = LogFormatJSON
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	if cfg.File != "" && cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}

	return nil
}
