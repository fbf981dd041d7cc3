package config

import (
	"errors"
	"time"

	queueConfig "github.com/babylonlabs-io/staking-queue-client/config"
)

const (
	QueueTypeClassic = queueConfig.ClassicQueueType
	QueueTypeQuorum  = queueConfig.QuorumQueueType

	defaultQueueName = "ledger_events_queue"
)

// QueueConfig is the rabbitmq client config plus the publishing settings of
// the ledger event queue
type QueueConfig struct {
	queueConfig.QueueConfig `mapstructure:",squash"`

	Enabled          bool          `mapstructure:"enabled"`
	QueueName        string        `mapstructure:"queue_name"`
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
	MaxRetryAttempts uint          `mapstructure:"max_retry_attempts"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
}

func (cfg *QueueConfig) Validate() error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.QueueName == "" {
		cfg.QueueName = defaultQueueName
	}
	if cfg.QueueType == "" {
		cfg.QueueType = QueueTypeClassic
	}

	// consumer side settings, only the requeue delay is used when declaring
	defaults := queueConfig.DefaultQueueConfig()
	if cfg.QueueProcessingTimeout == 0 {
		cfg.QueueProcessingTimeout = defaults.QueueProcessingTimeout
	}
	if cfg.MsgMaxRetryAttempts == 0 {
		cfg.MsgMaxRetryAttempts = defaults.MsgMaxRetryAttempts
	}
	if cfg.ReQueueDelayTime == 0 {
		cfg.ReQueueDelayTime = defaults.ReQueueDelayTime
	}

	if err := cfg.QueueConfig.Validate(); err != nil {
		return err
	}

	if cfg.PublishTimeout <= 0 {
		return errors.New("publish_timeout must be positive")
	}

	if cfg.MaxRetryAttempts == 0 {
		return errors.New("max_retry_attempts must be positive")
	}

	if cfg.RetryInterval <= 0 {
		return errors.New("retry_interval must be positive")
	}

	return nil
}
