package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/badgerdb"
	dbmodel "github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/observability/logging"
	"github.com/nodestake/staking-ledger/internal/queue"
	"github.com/nodestake/staking-ledger/internal/services"
)

// Publisher is the event sink the commands hand to the service
type Publisher interface {
	services.EventPublisher
	Ping(ctx context.Context) error
	Shutdown()
}

// newPublisher connects to rabbitmq when the queue is enabled and falls back
// to logging events otherwise
func newPublisher(cfg *config.QueueConfig) (Publisher, error) {
	if !cfg.Enabled {
		return queue.NewLogPublisher(), nil
	}
	qm, err := queue.NewQueueManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("error while creating queue manager: %w", err)
	}
	return qm, nil
}

// loadConfig reads the config file and installs the configured logger
func loadConfig() (*config.Config, io.Closer, error) {
	cfgPath := GetConfigPath()
	cfg, err := config.New(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error while loading config file %s: %w", cfgPath, err)
	}

	closer, err := logging.Setup(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("error while setting up logging: %w", err)
	}
	return cfg, closer, nil
}

// openStore returns the configured store wrapped with latency metrics
func openStore(ctx context.Context, cfg *config.DbConfig) (db.DbInterface, error) {
	var store db.DbInterface
	switch cfg.Type {
	case config.DbTypeMongo:
		if err := dbmodel.Setup(ctx, cfg); err != nil {
			return nil, fmt.Errorf("error while setting up staking db model: %w", err)
		}
		client, err := db.New(ctx, *cfg)
		if err != nil {
			return nil, fmt.Errorf("error while creating db client: %w", err)
		}
		store = client
	case config.DbTypeBadger:
		client, err := badgerdb.New(*cfg)
		if err != nil {
			return nil, fmt.Errorf("error while opening badger db: %w", err)
		}
		store = client
	default:
		return nil, fmt.Errorf("unsupported db type: %s", cfg.Type)
	}

	if err := store.Ping(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("db is unreachable: %w", err)
	}
	return db.NewDbWithMetrics(store), nil
}

// ledgerSession is what the one-shot admin commands work with
type ledgerSession struct {
	cfg       *config.Config
	store     db.DbInterface
	publisher Publisher
	service   *services.Service
	logFile   io.Closer
}

func openLedger(ctx context.Context) (_ *ledgerSession, err error) {
	s := &ledgerSession{}
	defer func() {
		if err != nil {
			s.Close(ctx)
		}
	}()

	if s.cfg, s.logFile, err = loadConfig(); err != nil {
		return nil, err
	}
	if s.store, err = openStore(ctx, &s.cfg.Db); err != nil {
		return nil, err
	}
	if s.publisher, err = newPublisher(&s.cfg.Queue); err != nil {
		return nil, err
	}
	if s.service, err = services.NewService(s.cfg, s.store, s.publisher); err != nil {
		return nil, fmt.Errorf("error while creating service: %w", err)
	}
	return s, nil
}

func (s *ledgerSession) Close(ctx context.Context) {
	if s.publisher != nil {
		s.publisher.Shutdown()
	}
	if s.store != nil {
		_ = s.store.Close(ctx)
	}
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}
