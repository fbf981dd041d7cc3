package badgerdb

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
)

// CalculateLedgerStats walks all server and delegation records in one read
// transaction so the sums are taken from a single snapshot
func (d *Database) CalculateLedgerStats(ctx context.Context) (*model.LedgerStats, error) {
	var stats model.LedgerStats

	err := d.RunInTransaction(ctx, func(ctx context.Context) error {
		stats = model.LedgerStats{}

		err := d.scan(ctx, serverPrefix, func(val []byte) error {
			var doc model.ServerDocument
			if err := bson.Unmarshal(val, &doc); err != nil {
				return err
			}
			stats.ServerCount++
			stats.ServerStake += doc.Stake
			stats.ServerTotal += doc.Total
			stats.TotalDelegators += uint64(doc.TotalDelegators)
			return nil
		})
		if err != nil {
			return err
		}

		return d.scan(ctx, delegationPrefix, func(val []byte) error {
			var doc model.DelegationDocument
			if err := bson.Unmarshal(val, &doc); err != nil {
				return err
			}
			stats.DelegationCount++
			stats.DelegatedStake += doc.Stake
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func (d *Database) UpsertLedgerStats(ctx context.Context, stats *model.LedgerStatsDocument) error {
	stats.ID = model.LedgerStatsID
	return d.put(ctx, ledgerStatsKey, stats)
}

func (d *Database) GetLedgerStats(ctx context.Context) (*model.LedgerStatsDocument, error) {
	var doc model.LedgerStatsDocument
	if err := d.get(ctx, ledgerStatsKey, &doc, "ledger stats not found"); err != nil {
		return nil, err
	}
	return &doc, nil
}
