package db

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
)

// CalculateLedgerStats sums all live records with aggregation pipelines
// instead of loading every record into memory
func (db *Database) CalculateLedgerStats(ctx context.Context) (*model.LedgerStats, error) {
	serverPipeline := bson.A{
		bson.M{
			"$group": bson.M{
				"_id":              nil,
				"server_count":     bson.M{"$sum": 1},
				"server_stake":     bson.M{"$sum": "$stake"},
				"server_total":     bson.M{"$sum": "$total"},
				"total_delegators": bson.M{"$sum": "$total_delegators"},
			},
		},
	}

	var stats model.LedgerStats
	if err := db.aggregateOne(ctx, model.ServerCollection, serverPipeline, &stats); err != nil {
		return nil, err
	}

	delegationPipeline := bson.A{
		bson.M{
			"$group": bson.M{
				"_id":              nil,
				"delegation_count": bson.M{"$sum": 1},
				"delegated_stake":  bson.M{"$sum": "$stake"},
			},
		},
	}

	var delegations struct {
		DelegationCount uint64 `bson:"delegation_count"`
		DelegatedStake  uint64 `bson:"delegated_stake"`
	}
	if err := db.aggregateOne(ctx, model.DelegationCollection, delegationPipeline, &delegations); err != nil {
		return nil, err
	}
	stats.DelegationCount = delegations.DelegationCount
	stats.DelegatedStake = delegations.DelegatedStake

	return &stats, nil
}

// aggregateOne decodes the single result of a grouping pipeline, leaving out
// untouched when the collection is empty
func (db *Database) aggregateOne(ctx context.Context, collection string, pipeline bson.A, out any) error {
	cursor, err := db.collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	if cursor.Next(ctx) {
		if err := cursor.Decode(out); err != nil {
			return err
		}
	}
	return cursor.Err()
}
