package db

import (
	"context"
	"errors"

	"github.com/nodestake/staking-ledger/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) GetTokenAccount(ctx context.Context, address string) (*model.TokenAccountDocument, error) {
	filter := bson.M{"_id": address}
	res := db.collection(model.TokenAccountCollection).FindOne(ctx, filter)

	var doc model.TokenAccountDocument
	err := res.Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, &NotFoundError{
				Key:     address,
				Message: "token account not found",
			}
		}
		return nil, err
	}

	return &doc, nil
}

func (db *Database) InsertTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error {
	_, err := db.collection(model.TokenAccountCollection).InsertOne(ctx, account)
	if err != nil {
		var writeErr mongo.WriteException
		if errors.As(err, &writeErr) {
			for _, e := range writeErr.WriteErrors {
				if mongo.IsDuplicateKeyError(e) {
					return &DuplicateKeyError{
						Key:     account.Address,
						Message: "token account already exists",
					}
				}
			}
		}
		return err
	}
	return nil
}

func (db *Database) SaveTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error {
	filter := bson.M{"_id": account.Address}
	_, err := db.collection(model.TokenAccountCollection).
		ReplaceOne(ctx, filter, account, options.Replace().SetUpsert(true))
	return err
}

func (db *Database) DeleteTokenAccount(ctx context.Context, address string) error {
	res, err := db.collection(model.TokenAccountCollection).DeleteOne(ctx, bson.M{"_id": address})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &NotFoundError{
			Key:     address,
			Message: "token account not found",
		}
	}
	return nil
}
