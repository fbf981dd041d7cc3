package services

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/types"
)

type recordState int

const (
	recordAbsent recordState = iota
	recordActive
)

// record is the slot at a derived address. It is either absent or holds the
// active document.
type record[T any] struct {
	state     recordState
	doc       *T
	authority *pda.Authority
}

func loadRecord[T any](
	ctx context.Context, authority *pda.Authority,
	get func(ctx context.Context, address string) (*T, error),
) (*record[T], error) {
	doc, err := get(ctx, authority.Address().String())
	if err != nil {
		if db.IsNotFoundError(err) {
			return &record[T]{state: recordAbsent, authority: authority}, nil
		}
		return nil, err
	}
	return &record[T]{state: recordActive, doc: doc, authority: authority}, nil
}

func (r *record[T]) active() (*T, error) {
	if r.state != recordActive {
		return nil, types.NewLedgerError(types.StakeAccountNotFound)
	}
	return r.doc, nil
}

// activateOrAuthorize creates the document when the slot is absent. When it is
// active the caller must be its owner, otherwise denied is returned.
func (r *record[T]) activateOrAuthorize(
	caller pda.Address,
	ownerOf func(doc *T) string,
	create func() (*T, error),
	denied types.ErrorCode,
) (created bool, err error) {
	if r.state == recordActive {
		if ownerOf(r.doc) != caller.String() {
			return false, types.NewLedgerError(denied)
		}
		return false, nil
	}

	doc, err := create()
	if err != nil {
		return false, err
	}
	r.doc = doc
	r.state = recordActive
	return true, nil
}

// authorize fails unless caller owns the active document
func (r *record[T]) authorize(caller pda.Address, ownerOf func(doc *T) string) (*T, error) {
	doc, err := r.active()
	if err != nil {
		return nil, err
	}
	if ownerOf(doc) != caller.String() {
		return nil, types.NewLedgerError(types.Unauthorized)
	}
	return doc, nil
}

func serverOwner(doc *model.ServerDocument) string {
	return doc.Owner
}

func delegationOwner(doc *model.DelegationDocument) string {
	return doc.Owner
}

func (s *Service) loadRegistry(ctx context.Context) (*model.RegistryDocument, error) {
	registry, err := s.db.GetRegistry(ctx)
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewLedgerError(types.RegistryNotInitialized)
		}
		return nil, err
	}
	if !registry.Initialized {
		return nil, types.NewLedgerError(types.RegistryNotInitialized)
	}
	return registry, nil
}

func addUser(registry *model.RegistryDocument) error {
	if registry.TotalUsers == ^uint32(0) {
		return types.NewLedgerError(types.NumberOverflow)
	}
	registry.TotalUsers++
	return nil
}

func removeUser(registry *model.RegistryDocument) error {
	if registry.TotalUsers == 0 {
		return types.NewLedgerError(types.NumberOverflow)
	}
	registry.TotalUsers--
	return nil
}
