package model

const SignerNonceCollection = "signer_nonces"

// SignerNonceDocument holds the highest request nonce accepted from a signer
type SignerNonceDocument struct {
	Signer    string `bson:"_id"`
	Nonce     uint64 `bson:"nonce"`
	UpdatedAt int64  `bson:"updated_at"`
}
