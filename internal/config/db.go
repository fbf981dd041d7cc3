package config

import (
	"errors"
	"fmt"
	"net/url"
)

type DbType string

const (
	DbTypeMongo  DbType = "mongo"
	DbTypeBadger DbType = "badger"

	defaultMaxTxRetries = 5
)

type DbConfig struct {
	Type         DbType `mapstructure:"type"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	DbName       string `mapstructure:"db-name"`
	Address      string `mapstructure:"address"`
	Path         string `mapstructure:"path"`
	InMemory     bool   `mapstructure:"in-memory"`
	MaxTxRetries uint   `mapstructure:"max-tx-retries"`
}

func (cfg *DbConfig) Validate() error {
	if cfg.Type == "" {
		cfg.Type = DbTypeMongo
	}
	if cfg.MaxTxRetries == 0 {
		cfg.MaxTxRetries = defaultMaxTxRetries
	}

	switch cfg.Type {
	case DbTypeMongo:
		if cfg.Username == "" {
			return errors.New("missing db username")
		}

		if cfg.Password == "" {
			return errors.New("missing db password")
		}

		if cfg.Address == "" {
			return errors.New("missing db address")
		}

		if cfg.DbName == "" {
			return errors.New("missing db name")
		}

		u, err := url.Parse(cfg.Address)
		if err != nil {
			return fmt.Errorf("invalid db address: %w", err)
		}

		if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
			return fmt.Errorf("unsupported db address scheme: %s", u.Scheme)
		}
	case DbTypeBadger:
		if cfg.Path == "" && !cfg.InMemory {
			return errors.New("badger db requires a path unless in-memory is set")
		}
	default:
		return fmt.Errorf("unsupported db type: %s", cfg.Type)
	}

	return nil
}
