package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read-timeout"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle-timeout"`
	MaxBodyBytes int64         `mapstructure:"max-body-bytes"`
	// NonceWindow bounds how far a signed request nonce, in unix
	// milliseconds, may be from the server clock
	NonceWindow time.Duration `mapstructure:"nonce-window"`
}

func (cfg *ServerConfig) Validate() error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("server port must be between 0 and 65535 (inclusive)")
	}

	if net.ParseIP(cfg.Host) == nil {
		return fmt.Errorf("invalid server host: %v", cfg.Host)
	}

	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	if cfg.NonceWindow < 0 {
		return errors.New("nonce-window must not be negative")
	}
	if cfg.NonceWindow == 0 {
		cfg.NonceWindow = 5 * time.Minute
	}

	return nil
}

func (cfg *ServerConfig) Addr() string {
	return net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
}
