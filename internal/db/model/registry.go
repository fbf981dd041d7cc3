package model

const (
	RegistryCollection = "registry"
	RegistryID         = "registry"
)

// RegistryDocument is the singleton holding global totals
type RegistryDocument struct {
	ID             string `bson:"_id"` // Always "registry"
	Address        string `bson:"address"`
	Bump           uint8  `bson:"bump"`
	Admin          string `bson:"admin"`
	TotalStake     uint64 `bson:"total_stake"`     // Sum of every live server total
	TotalUsers     uint32 `bson:"total_users"`     // Live server and delegation records
	ServerSequence uint64 `bson:"server_sequence"` // Last incarnation handed to a server
	Initialized    bool   `bson:"initialized"`
	InitializedAt  int64  `bson:"initialized_at"`
}
