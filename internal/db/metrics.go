package db

import (
	"context"
	"time"

	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/observability/metrics"
)

type DbWithMetrics struct {
	db DbInterface
}

func NewDbWithMetrics(db DbInterface) *DbWithMetrics {
	return &DbWithMetrics{db: db}
}

func (d *DbWithMetrics) Ping(ctx context.Context) error {
	return d.db.Ping(ctx)
}

func (d *DbWithMetrics) Close(ctx context.Context) error {
	return d.db.Close(ctx)
}

func (d *DbWithMetrics) RunInTransaction(ctx context.Context, fn TxFunc) error {
	return d.run("RunInTransaction", func() error {
		return d.db.RunInTransaction(ctx, fn)
	})
}

func (d *DbWithMetrics) GetRegistry(ctx context.Context) (result *model.RegistryDocument, err error) {
	//nolint:errcheck
	d.run("GetRegistry", func() error {
		result, err = d.db.GetRegistry(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveRegistry(ctx context.Context, registry *model.RegistryDocument) error {
	return d.run("SaveRegistry", func() error {
		return d.db.SaveRegistry(ctx, registry)
	})
}

func (d *DbWithMetrics) GetServer(ctx context.Context, address string) (result *model.ServerDocument, err error) {
	//nolint:errcheck
	d.run("GetServer", func() error {
		result, err = d.db.GetServer(ctx, address)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveServer(ctx context.Context, server *model.ServerDocument) error {
	return d.run("SaveServer", func() error {
		return d.db.SaveServer(ctx, server)
	})
}

func (d *DbWithMetrics) DeleteServer(ctx context.Context, address string) error {
	return d.run("DeleteServer", func() error {
		return d.db.DeleteServer(ctx, address)
	})
}

func (d *DbWithMetrics) GetServerByKeyHash(ctx context.Context, keyHash string) (result *model.ServerDocument, err error) {
	//nolint:errcheck
	d.run("GetServerByKeyHash", func() error {
		result, err = d.db.GetServerByKeyHash(ctx, keyHash)
		return err
	})
	return
}

func (d *DbWithMetrics) ListServers(ctx context.Context, owner string) (result []*model.ServerDocument, err error) {
	//nolint:errcheck
	d.run("ListServers", func() error {
		result, err = d.db.ListServers(ctx, owner)
		return err
	})
	return
}

func (d *DbWithMetrics) GetDelegation(ctx context.Context, address string) (result *model.DelegationDocument, err error) {
	//nolint:errcheck
	d.run("GetDelegation", func() error {
		result, err = d.db.GetDelegation(ctx, address)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveDelegation(ctx context.Context, delegation *model.DelegationDocument) error {
	return d.run("SaveDelegation", func() error {
		return d.db.SaveDelegation(ctx, delegation)
	})
}

func (d *DbWithMetrics) DeleteDelegation(ctx context.Context, address string) error {
	return d.run("DeleteDelegation", func() error {
		return d.db.DeleteDelegation(ctx, address)
	})
}

func (d *DbWithMetrics) GetDelegationsByServer(ctx context.Context, server string) (result []*model.DelegationDocument, err error) {
	//nolint:errcheck
	d.run("GetDelegationsByServer", func() error {
		result, err = d.db.GetDelegationsByServer(ctx, server)
		return err
	})
	return
}

func (d *DbWithMetrics) GetDelegationsByOwner(ctx context.Context, owner string) (result []*model.DelegationDocument, err error) {
	//nolint:errcheck
	d.run("GetDelegationsByOwner", func() error {
		result, err = d.db.GetDelegationsByOwner(ctx, owner)
		return err
	})
	return
}

func (d *DbWithMetrics) GetTokenAccount(ctx context.Context, address string) (result *model.TokenAccountDocument, err error) {
	//nolint:errcheck
	d.run("GetTokenAccount", func() error {
		result, err = d.db.GetTokenAccount(ctx, address)
		return err
	})
	return
}

func (d *DbWithMetrics) InsertTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error {
	return d.run("InsertTokenAccount", func() error {
		return d.db.InsertTokenAccount(ctx, account)
	})
}

func (d *DbWithMetrics) SaveTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error {
	return d.run("SaveTokenAccount", func() error {
		return d.db.SaveTokenAccount(ctx, account)
	})
}

func (d *DbWithMetrics) DeleteTokenAccount(ctx context.Context, address string) error {
	return d.run("DeleteTokenAccount", func() error {
		return d.db.DeleteTokenAccount(ctx, address)
	})
}

func (d *DbWithMetrics) GetSignerNonce(ctx context.Context, signer string) (result *model.SignerNonceDocument, err error) {
	//nolint:errcheck
	d.run("GetSignerNonce", func() error {
		result, err = d.db.GetSignerNonce(ctx, signer)
		return err
	})
	return
}

func (d *DbWithMetrics) SaveSignerNonce(ctx context.Context, nonce *model.SignerNonceDocument) error {
	return d.run("SaveSignerNonce", func() error {
		return d.db.SaveSignerNonce(ctx, nonce)
	})
}

func (d *DbWithMetrics) CalculateLedgerStats(ctx context.Context) (result *model.LedgerStats, err error) {
	//nolint:errcheck
	d.run("CalculateLedgerStats", func() error {
		result, err = d.db.CalculateLedgerStats(ctx)
		return err
	})
	return
}

func (d *DbWithMetrics) UpsertLedgerStats(ctx context.Context, stats *model.LedgerStatsDocument) error {
	return d.run("UpsertLedgerStats", func() error {
		return d.db.UpsertLedgerStats(ctx, stats)
	})
}

func (d *DbWithMetrics) GetLedgerStats(ctx context.Context) (result *model.LedgerStatsDocument, err error) {
	//nolint:errcheck
	d.run("GetLedgerStats", func() error {
		result, err = d.db.GetLedgerStats(ctx)
		return err
	})
	return
}

// run is private method that executes passed lambda function and send metrics data with spent time, method name
// and an error if any. It returns the error from the lambda function for convenience
func (d *DbWithMetrics) run(method string, f func() error) error {
	startTime := time.Now()
	err := f()
	duration := time.Since(startTime)

	metrics.RecordDbLatency(duration, method, err != nil)
	return err
}
