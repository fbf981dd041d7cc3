package model

import (
	"context"
	"time"

	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type index struct {
	Indexes bson.D
	Unique  bool
}

var collections = map[string][]index{
	RegistryCollection: {},
	ServerCollection: {
		{Indexes: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: 1}}},
		{Indexes: bson.D{{Key: "server_key_hash", Value: 1}}, Unique: true},
	},
	DelegationCollection: {
		{Indexes: bson.D{{Key: "server", Value: 1}, {Key: "created_at", Value: 1}}},
		{Indexes: bson.D{{Key: "owner", Value: 1}, {Key: "server", Value: 1}}, Unique: true},
	},
	TokenAccountCollection: {
		{Indexes: bson.D{{Key: "owner", Value: 1}, {Key: "mint", Value: 1}}},
	},
	LedgerStatsCollection: {},
	SignerNonceCollection: {},
}

// Setup creates collections and indexes. Collections must exist up front
// since they cannot be created inside a multi document transaction on
// older servers.
func Setup(ctx context.Context, cfg *config.DbConfig) error {
	clientOps := options.Client().ApplyURI(cfg.Address)
	if cfg.Username != "" {
		clientOps.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	client, err := mongo.Connect(ctx, clientOps)
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx) //nolint:errcheck

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	database := client.Database(cfg.DbName)

	for name := range collections {
		createCollection(ctx, database, name)
	}

	for name, idxs := range collections {
		for _, idx := range idxs {
			if err := createIndex(ctx, database, name, idx); err != nil {
				return err
			}
		}
	}

	log.Info().Msg("Collections and Indexes created successfully.")
	return nil
}

func createCollection(ctx context.Context, database *mongo.Database, collectionName string) {
	// An error here usually means the collection already exists
	if err := database.CreateCollection(ctx, collectionName); err != nil {
		log.Debug().Err(err).Msgf("Collection maybe already exists: %s", collectionName)
		return
	}

	log.Debug().Msgf("Collection created successfully: %s", collectionName)
}

func createIndex(ctx context.Context, database *mongo.Database, collectionName string, idx index) error {
	if len(idx.Indexes) == 0 {
		return nil
	}

	indexModel := mongo.IndexModel{
		Keys:    idx.Indexes,
		Options: options.Index().SetUnique(idx.Unique),
	}

	_, err := database.Collection(collectionName).Indexes().CreateOne(ctx, indexModel)
	if err != nil {
		log.Error().Err(err).Msgf("Failed to create index on collection '%s'", collectionName)
		return err
	}

	log.Debug().Msgf("Index created successfully on collection '%s'", collectionName)
	return nil
}
