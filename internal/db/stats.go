package db

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertLedgerStats replaces the ledger stats snapshot
func (db *Database) UpsertLedgerStats(ctx context.Context, stats *model.LedgerStatsDocument) error {
	stats.ID = model.LedgerStatsID

	filter := bson.M{"_id": model.LedgerStatsID}
	opts := options.Replace().SetUpsert(true)

	_, err := db.collection(model.LedgerStatsCollection).ReplaceOne(ctx, filter, stats, opts)
	return err
}

func (db *Database) GetLedgerStats(ctx context.Context) (*model.LedgerStatsDocument, error) {
	filter := bson.M{"_id": model.LedgerStatsID}
	res := db.collection(model.LedgerStatsCollection).FindOne(ctx, filter)

	var doc model.LedgerStatsDocument
	if err := res.Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, &NotFoundError{
				Key:     model.LedgerStatsID,
				Message: "ledger stats not found",
			}
		}
		return nil, err
	}

	return &doc, nil
}
