package model

const DelegationCollection = "delegations"

// DelegationDocument is stake a delegator placed on a server record it does not own
type DelegationDocument struct {
	Address           string `bson:"_id"`                // Derived delegation record address
	Owner             string `bson:"owner"`              // Delegator identity
	Server            string `bson:"server"`             // Server record address
	Stake             uint64 `bson:"stake"`              // Delegated stake in base units
	Initialized       bool   `bson:"initialized"`        // Always true for persisted records
	Bump              uint8  `bson:"bump"`               // Bump of the derived address
	Vault             string `bson:"vault"`              // Token account holding the stake
	ServerIncarnation uint64 `bson:"server_incarnation"` // Incarnation of the server when last linked
	CreatedAt         int64  `bson:"created_at"`
	UpdatedAt         int64  `bson:"updated_at"`
}
