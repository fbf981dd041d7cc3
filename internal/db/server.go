package db

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) GetServer(ctx context.Context, address string) (*model.ServerDocument, error) {
	filter := bson.M{"_id": address}
	res := db.collection(model.ServerCollection).FindOne(ctx, filter)

	var doc model.ServerDocument
	err := res.Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, &NotFoundError{
				Key:     address,
				Message: "server not found",
			}
		}
		return nil, err
	}

	return &doc, nil
}

func (db *Database) SaveServer(ctx context.Context, server *model.ServerDocument) error {
	filter := bson.M{"_id": server.Address}
	_, err := db.collection(model.ServerCollection).
		ReplaceOne(ctx, filter, server, options.Replace().SetUpsert(true))
	return err
}

func (db *Database) DeleteServer(ctx context.Context, address string) error {
	res, err := db.collection(model.ServerCollection).DeleteOne(ctx, bson.M{"_id": address})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return &NotFoundError{
			Key:     address,
			Message: "server not found",
		}
	}
	return nil
}

func (db *Database) GetServerByKeyHash(ctx context.Context, keyHash string) (*model.ServerDocument, error) {
	filter := bson.M{"server_key_hash": keyHash}
	res := db.collection(model.ServerCollection).FindOne(ctx, filter)

	var doc model.ServerDocument
	if err := res.Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, &NotFoundError{
				Key:     keyHash,
				Message: "server key not registered",
			}
		}
		return nil, err
	}
	return &doc, nil
}

func (db *Database) ListServers(ctx context.Context, owner string) ([]*model.ServerDocument, error) {
	filter := bson.M{}
	if owner != "" {
		filter["owner"] = owner
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := db.collection(model.ServerCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var servers []*model.ServerDocument
	if err := cursor.All(ctx, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}
