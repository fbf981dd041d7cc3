package db

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db/model"
)

// TxFunc runs inside a store transaction. Store methods called with the ctx
// it receives take part in that transaction. It may run more than once when
// the store retries a conflicting transaction.
type TxFunc func(ctx context.Context) error

type DbInterface interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	RunInTransaction(ctx context.Context, fn TxFunc) error

	GetRegistry(ctx context.Context) (*model.RegistryDocument, error)
	SaveRegistry(ctx context.Context, registry *model.RegistryDocument) error

	GetServer(ctx context.Context, address string) (*model.ServerDocument, error)
	SaveServer(ctx context.Context, server *model.ServerDocument) error
	DeleteServer(ctx context.Context, address string) error
	// GetServerByKeyHash returns the live server registered with the given
	// hex sha256 server key hash
	GetServerByKeyHash(ctx context.Context, keyHash string) (*model.ServerDocument, error)
	// ListServers returns all servers, or the ones owned by owner when set
	ListServers(ctx context.Context, owner string) ([]*model.ServerDocument, error)

	GetDelegation(ctx context.Context, address string) (*model.DelegationDocument, error)
	SaveDelegation(ctx context.Context, delegation *model.DelegationDocument) error
	DeleteDelegation(ctx context.Context, address string) error
	GetDelegationsByServer(ctx context.Context, server string) ([]*model.DelegationDocument, error)
	GetDelegationsByOwner(ctx context.Context, owner string) ([]*model.DelegationDocument, error)

	GetTokenAccount(ctx context.Context, address string) (*model.TokenAccountDocument, error)
	InsertTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error
	SaveTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error
	DeleteTokenAccount(ctx context.Context, address string) error

	// GetSignerNonce returns the last request nonce accepted from signer
	GetSignerNonce(ctx context.Context, signer string) (*model.SignerNonceDocument, error)
	SaveSignerNonce(ctx context.Context, nonce *model.SignerNonceDocument) error

	CalculateLedgerStats(ctx context.Context) (*model.LedgerStats, error)
	UpsertLedgerStats(ctx context.Context, stats *model.LedgerStatsDocument) error
	GetLedgerStats(ctx context.Context) (*model.LedgerStatsDocument, error)
}
