package db

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (db *Database) GetSignerNonce(ctx context.Context, signer string) (*model.SignerNonceDocument, error) {
	filter := bson.M{"_id": signer}
	res := db.collection(model.SignerNonceCollection).FindOne(ctx, filter)

	var doc model.SignerNonceDocument
	if err := res.Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, &NotFoundError{
				Key:     signer,
				Message: "no nonce recorded for signer",
			}
		}
		return nil, err
	}
	return &doc, nil
}

func (db *Database) SaveSignerNonce(ctx context.Context, nonce *model.SignerNonceDocument) error {
	filter := bson.M{"_id": nonce.Signer}
	_, err := db.collection(model.SignerNonceCollection).
		ReplaceOne(ctx, filter, nonce, options.Replace().SetUpsert(true))
	return err
}
