package model

const ServerCollection = "servers"

// ServerDocument is a registered server and the stake held against it
type ServerDocument struct {
	Address         string `bson:"_id"`              // Derived server record address
	Owner           string `bson:"owner"`            // First registrant, never changes
	Name            string `bson:"name"`             // Display name, at most 32 chars
	ServerKey       []byte `bson:"server_key"`       // Opaque key blob, at most 65 bytes
	ServerKeyHash   string `bson:"server_key_hash"`  // Hex sha256 of ServerKey
	Stake           uint64 `bson:"stake"`            // Owner's direct stake in base units
	Total           uint64 `bson:"total"`            // Stake plus all delegated stake
	TotalDelegators uint32 `bson:"total_delegators"` // Delegations linked to this incarnation
	Initialized     bool   `bson:"initialized"`
	Bump            uint8  `bson:"bump"`
	Vault           string `bson:"vault"`
	Incarnation     uint64 `bson:"incarnation"` // Registry sequence number at creation
	CreatedAt       int64  `bson:"created_at"`
	UpdatedAt       int64  `bson:"updated_at"`
}
