package model

const (
	LedgerStatsCollection = "ledger_stats"
	LedgerStatsID         = "ledger_stats"
)

// LedgerStats is the result of aggregating all live records
type LedgerStats struct {
	ServerCount     uint64 `bson:"server_count"`
	DelegationCount uint64 `bson:"delegation_count"`
	ServerStake     uint64 `bson:"server_stake"`     // Σ server.stake
	ServerTotal     uint64 `bson:"server_total"`     // Σ server.total
	DelegatedStake  uint64 `bson:"delegated_stake"`  // Σ delegation.stake
	TotalDelegators uint64 `bson:"total_delegators"` // Σ server.total_delegators
}

// LedgerStatsDocument is the last snapshot written by the stats poller
type LedgerStatsDocument struct {
	ID                 string `bson:"_id"` // Always "ledger_stats"
	LedgerStats        `bson:",inline"`
	RegistryTotalStake uint64   `bson:"registry_total_stake"`
	RegistryTotalUsers uint32   `bson:"registry_total_users"`
	Consistent         bool     `bson:"consistent"`
	Violations         []string `bson:"violations,omitempty"`
	LastUpdated        int64    `bson:"last_updated"` // Unix timestamp of last update
}
