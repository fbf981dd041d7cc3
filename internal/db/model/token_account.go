package model

const TokenAccountCollection = "token_accounts"

type TokenAccountDocument struct {
	Address string `bson:"_id"`
	Mint    string `bson:"mint"`
	Owner   string `bson:"owner"` // Identity allowed to move funds out
	Amount  uint64 `bson:"amount"`
}
