package db

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) GetRegistry(ctx context.Context) (*model.RegistryDocument, error) {
	filter := bson.M{"_id": model.RegistryID}
	res := db.collection(model.RegistryCollection).FindOne(ctx, filter)

	var doc model.RegistryDocument
	err := res.Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, &NotFoundError{
				Key:     model.RegistryID,
				Message: "registry not found",
			}
		}
		return nil, err
	}

	return &doc, nil
}

func (db *Database) SaveRegistry(ctx context.Context, registry *model.RegistryDocument) error {
	registry.ID = model.RegistryID

	filter := bson.M{"_id": model.RegistryID}
	_, err := db.collection(model.RegistryCollection).
		ReplaceOne(ctx, filter, registry, options.Replace().SetUpsert(true))
	return err
}
