package badgerdb

import (
	"context"
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"go.mongodb.org/mongo-driver/bson"
)

func (d *Database) GetRegistry(ctx context.Context) (*model.RegistryDocument, error) {
	var doc model.RegistryDocument
	if err := d.get(ctx, registryKey, &doc, "registry not found"); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Database) SaveRegistry(ctx context.Context, registry *model.RegistryDocument) error {
	registry.ID = model.RegistryID
	return d.put(ctx, registryKey, registry)
}

func (d *Database) GetServer(ctx context.Context, address string) (*model.ServerDocument, error) {
	var doc model.ServerDocument
	if err := d.get(ctx, serverPrefix+address, &doc, "server not found"); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SaveServer stores the server and its server key index entry in one
// transaction
func (d *Database) SaveServer(ctx context.Context, server *model.ServerDocument) error {
	return d.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := d.put(ctx, serverPrefix+server.Address, server); err != nil {
			return err
		}
		return d.update(ctx, func(txn *badger.Txn) error {
			return txn.Set([]byte(serverKeyPrefix+server.ServerKeyHash), []byte(server.Address))
		})
	})
}

func (d *Database) DeleteServer(ctx context.Context, address string) error {
	return d.RunInTransaction(ctx, func(ctx context.Context) error {
		server, err := d.GetServer(ctx, address)
		if err != nil {
			return err
		}
		if err := d.delete(ctx, serverPrefix+address, "server not found"); err != nil {
			return err
		}
		return d.update(ctx, func(txn *badger.Txn) error {
			return txn.Delete([]byte(serverKeyPrefix + server.ServerKeyHash))
		})
	})
}

func (d *Database) GetServerByKeyHash(ctx context.Context, keyHash string) (*model.ServerDocument, error) {
	var address string
	err := d.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(serverKeyPrefix + keyHash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return &db.NotFoundError{
					Key:     keyHash,
					Message: "server key not registered",
				}
			}
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		address = string(raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d.GetServer(ctx, address)
}

func (d *Database) ListServers(ctx context.Context, owner string) ([]*model.ServerDocument, error) {
	var servers []*model.ServerDocument
	err := d.scan(ctx, serverPrefix, func(val []byte) error {
		var doc model.ServerDocument
		if err := bson.Unmarshal(val, &doc); err != nil {
			return err
		}
		if owner == "" || doc.Owner == owner {
			servers = append(servers, &doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(servers, func(i, j int) bool {
		return servers[i].CreatedAt < servers[j].CreatedAt
	})
	return servers, nil
}

func (d *Database) GetDelegation(ctx context.Context, address string) (*model.DelegationDocument, error) {
	var doc model.DelegationDocument
	if err := d.get(ctx, delegationPrefix+address, &doc, "delegation not found"); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Database) SaveDelegation(ctx context.Context, delegation *model.DelegationDocument) error {
	return d.put(ctx, delegationPrefix+delegation.Address, delegation)
}

func (d *Database) DeleteDelegation(ctx context.Context, address string) error {
	return d.delete(ctx, delegationPrefix+address, "delegation not found")
}

func (d *Database) GetDelegationsByServer(ctx context.Context, server string) ([]*model.DelegationDocument, error) {
	return d.filterDelegations(ctx, func(doc *model.DelegationDocument) bool {
		return doc.Server == server
	})
}

func (d *Database) GetDelegationsByOwner(ctx context.Context, owner string) ([]*model.DelegationDocument, error) {
	return d.filterDelegations(ctx, func(doc *model.DelegationDocument) bool {
		return doc.Owner == owner
	})
}

func (d *Database) filterDelegations(ctx context.Context, keep func(doc *model.DelegationDocument) bool) ([]*model.DelegationDocument, error) {
	var delegations []*model.DelegationDocument
	err := d.scan(ctx, delegationPrefix, func(val []byte) error {
		var doc model.DelegationDocument
		if err := bson.Unmarshal(val, &doc); err != nil {
			return err
		}
		if keep(&doc) {
			delegations = append(delegations, &doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(delegations, func(i, j int) bool {
		return delegations[i].CreatedAt < delegations[j].CreatedAt
	})
	return delegations, nil
}

func (d *Database) GetTokenAccount(ctx context.Context, address string) (*model.TokenAccountDocument, error) {
	var doc model.TokenAccountDocument
	if err := d.get(ctx, tokenAccountPrefix+address, &doc, "token account not found"); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Database) InsertTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error {
	return d.insert(ctx, tokenAccountPrefix+account.Address, account, "token account already exists")
}

func (d *Database) SaveTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error {
	return d.put(ctx, tokenAccountPrefix+account.Address, account)
}

func (d *Database) DeleteTokenAccount(ctx context.Context, address string) error {
	return d.delete(ctx, tokenAccountPrefix+address, "token account not found")
}

func (d *Database) GetSignerNonce(ctx context.Context, signer string) (*model.SignerNonceDocument, error) {
	var doc model.SignerNonceDocument
	if err := d.get(ctx, signerNoncePrefix+signer, &doc, "no nonce recorded for signer"); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Database) SaveSignerNonce(ctx context.Context, nonce *model.SignerNonceDocument) error {
	return d.put(ctx, signerNoncePrefix+nonce.Signer, nonce)
}
