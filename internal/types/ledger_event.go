package types

import (
	"time"

	"github.com/google/uuid"
)

type LedgerEventType string

func (e LedgerEventType) String() string {
	return string(e)
}

const (
	EventRegistryInitialized     LedgerEventType = "registry-initialized"
	EventServerAdded             LedgerEventType = "server-added"
	EventServerUpdated           LedgerEventType = "server-updated"
	EventServerRemoved           LedgerEventType = "server-removed"
	EventDelegatedRemoved        LedgerEventType = "delegated-removed"
	EventTokenDeposited          LedgerEventType = "token-deposited"
	EventTokenDelegatedDeposited LedgerEventType = "token-delegated-deposited"
	EventTokenWithdrawn          LedgerEventType = "token-withdrawn"
	EventDelegatedTokenWithdrawn LedgerEventType = "delegated-token-withdrawn"
)

// LedgerEvent is the message published after a ledger operation commits.
// Amounts are in base units. Stake is the resulting stake of the record the
// operation touched, Total the resulting total of the server record.
type LedgerEvent struct {
	ID          string          `json:"id"`
	Type        LedgerEventType `json:"type"`
	Owner       string          `json:"owner,omitempty"`
	Admin       string          `json:"admin,omitempty"`
	Server      string          `json:"server,omitempty"`
	ServerOwner string          `json:"serverOwner,omitempty"`
	Delegation  string          `json:"delegation,omitempty"`
	Name        string          `json:"name,omitempty"`
	ServerKey   string          `json:"serverKey,omitempty"`
	Amount      uint64          `json:"amount"`
	Stake       uint64          `json:"stake"`
	Total       uint64          `json:"total"`
	Timestamp   int64           `json:"timestamp"`
}

func NewLedgerEvent(eventType LedgerEventType) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().Unix(),
	}
}
