package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Db      DbConfig      `mapstructure:"db"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Poller  PollerConfig  `mapstructure:"poller"`
	Log     LogConfig     `mapstructure:"log"`
}

func (cfg *Config) Validate() error {
	if err := cfg.Db.Validate(); err != nil {
		return err
	}

	if err := cfg.Ledger.Validate(); err != nil {
		return err
	}

	if err := cfg.Queue.Validate(); err != nil {
		return err
	}

	if err := cfg.Server.Validate(); err != nil {
		return err
	}

	if err := cfg.Metrics.Validate(); err != nil {
		return err
	}

	if err := cfg.Poller.Validate(); err != nil {
		return err
	}

	if err := cfg.Log.Validate(); err != nil {
		return err
	}

	return nil
}

// New returns a fully parsed Config object from a given file path.
func New(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(cfgFile)

	v.AutomaticEnv()
	// Nested keys are overridden by env variables where "." becomes "_" and
	// "-" becomes "__", e.g. db.db-name can be set with STAKING_LEDGER_DB_DB__NAME
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "__"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

const envPrefix = "STAKING_LEDGER"
