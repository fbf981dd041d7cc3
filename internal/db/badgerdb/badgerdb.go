package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	registryKey    = "registry"
	ledgerStatsKey = "stats/ledger"

	serverPrefix       = "server/"
	serverKeyPrefix    = "serverkey/"
	delegationPrefix   = "delegation/"
	tokenAccountPrefix = "token/"
	signerNoncePrefix  = "nonce/"

	conflictRetryDelay = 10 * time.Millisecond
)

// Database is an embedded store keeping every document bson encoded under a
// prefixed key. Transactions are badger update transactions carried in ctx.
type Database struct {
	db           *badger.DB
	maxTxRetries uint
}

var _ db.DbInterface = (*Database)(nil)

func New(cfg config.DbConfig) (*Database, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{})

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	retries := cfg.MaxTxRetries
	if retries == 0 {
		retries = 1
	}

	return &Database{
		db:           bdb,
		maxTxRetries: retries,
	}, nil
}

func (d *Database) Ping(ctx context.Context) error {
	if d.db.IsClosed() {
		return errors.New("badger db is closed")
	}
	return nil
}

func (d *Database) Close(ctx context.Context) error {
	return d.db.Close()
}

type txnKey struct{}

func txnFromContext(ctx context.Context) *badger.Txn {
	txn, _ := ctx.Value(txnKey{}).(*badger.Txn)
	return txn
}

// RunInTransaction runs fn in one update transaction, retrying it when the
// commit loses a conflict against a concurrent transaction. A nested call
// joins the outer transaction.
func (d *Database) RunInTransaction(ctx context.Context, fn db.TxFunc) error {
	if txnFromContext(ctx) != nil {
		return fn(ctx)
	}

	return retry.Do(
		func() error {
			txn := d.db.NewTransaction(true)
			defer txn.Discard()

			if err := fn(context.WithValue(ctx, txnKey{}, txn)); err != nil {
				return err
			}
			return txn.Commit()
		},
		retry.Context(ctx),
		retry.Attempts(d.maxTxRetries),
		retry.Delay(conflictRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, badger.ErrConflict)
		}),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Debug().Uint("attempt", n+1).Err(err).Msg("retrying conflicting transaction")
		}),
	)
}

func (d *Database) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := txnFromContext(ctx); txn != nil {
		return fn(txn)
	}
	return d.db.View(fn)
}

func (d *Database) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := txnFromContext(ctx); txn != nil {
		return fn(txn)
	}
	return d.db.Update(fn)
}

func (d *Database) get(ctx context.Context, key string, out any, notFoundMsg string) error {
	return d.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &db.NotFoundError{
					Key:     key,
					Message: notFoundMsg,
				}
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return bson.Unmarshal(val, out)
		})
	})
}

func (d *Database) put(ctx context.Context, key string, doc any) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return d.update(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

func (d *Database) insert(ctx context.Context, key string, doc any, duplicateMsg string) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return d.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return &db.DuplicateKeyError{
				Key:     key,
				Message: duplicateMsg,
			}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set([]byte(key), raw)
	})
}

func (d *Database) delete(ctx context.Context, key string, notFoundMsg string) error {
	return d.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &db.NotFoundError{
					Key:     key,
					Message: notFoundMsg,
				}
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
}

// scan decodes every value under prefix with decode
func (d *Database) scan(ctx context.Context, prefix string, decode func(val []byte) error) error {
	return d.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := it.Item().Value(decode); err != nil {
				return err
			}
		}
		return nil
	})
}

type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	log.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...any) {
	log.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...any) {
	log.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...any) {
	log.Trace().Str("component", "badger").Msgf(format, args...)
}
