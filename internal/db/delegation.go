package db

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) GetDelegation(ctx context.Context, address string) (*model.DelegationDocument, error) {
	filter := bson.M{"_id": address}
	res := db.collection(model.DelegationCollection).FindOne(ctx, filter)

	var doc model.DelegationDocument
	err := res.Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, &NotFoundError{
				Key:     address,
				Message: "delegation not found",
			}
		}
		return nil, err
	}

	return &doc, nil
}

func (db *Database) SaveDelegation(ctx context.Context, delegation *model.DelegationDocument) error {
	filter := bson.M{"_id": delegation.Address}
	_, err := db.collection(model.DelegationCollection).
		ReplaceOne(ctx, filter, delegation, options.Replace().SetUpsert(true))
	return err
}

func (db *Database) DeleteDelegation(ctx context.Context, address string) error {
	res, err := db.collection(model.DelegationCollection).DeleteOne(ctx, bson.M{"_id": address})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &NotFoundError{
			Key:     address,
			Message: "delegation not found",
		}
	}
	return nil
}

func (db *Database) GetDelegationsByServer(ctx context.Context, server string) ([]*model.DelegationDocument, error) {
	return db.findDelegations(ctx, bson.M{"server": server})
}

func (db *Database) GetDelegationsByOwner(ctx context.Context, owner string) ([]*model.DelegationDocument, error) {
	return db.findDelegations(ctx, bson.M{"owner": owner})
}

func (db *Database) findDelegations(ctx context.Context, filter bson.M) ([]*model.DelegationDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := db.collection(model.DelegationCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var delegations []*model.DelegationDocument
	if err := cursor.All(ctx, &delegations); err != nil {
		return nil, err
	}
	return delegations, nil
}
