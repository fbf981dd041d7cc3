package services

import (
	"context"
	"time"

	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/rs/zerolog/log"
)

func (s *Service) loadServerRecord(ctx context.Context, address pda.Address) (*model.ServerDocument, error) {
	server, err := s.db.GetServer(ctx, address.String())
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewLedgerError(types.StakeAccountNotFound)
		}
		return nil, err
	}
	return server, nil
}

func (s *Service) loadOwnDelegation(
	ctx context.Context, caller, server pda.Address,
) (*record[model.DelegationDocument], *model.DelegationDocument, error) {
	authority, err := s.deriver.Delegation(caller, server)
	if err != nil {
		return nil, nil, types.NewInternalServiceError(err)
	}
	rec, err := loadRecord(ctx, authority, s.db.GetDelegation)
	if err != nil {
		return nil, nil, err
	}
	delegation, err := rec.authorize(caller, delegationOwner)
	if err != nil {
		return nil, nil, err
	}
	return rec, delegation, nil
}

// DelegatedDeposit stakes amount whole tokens from the caller on a server
// record. The first deposit creates the delegation.
func (s *Service) DelegatedDeposit(ctx context.Context, inv Invocation, serverAddress pda.Address, amount uint64) error {
	return s.execute(ctx, OpDelegatedDeposit, inv, func(ctx context.Context, scope *txScope) error {
		if err := checkCaller(inv); err != nil {
			return err
		}
		if err := s.checkMint(inv); err != nil {
			return err
		}
		scaled, err := types.ToBaseUnits(amount)
		if err != nil {
			return err
		}
		if scaled < types.DelegateMinimumStake {
			return types.NewLedgerError(types.DelegateExceedsMaxStakeLimit)
		}

		registry, err := s.loadRegistry(ctx)
		if err != nil {
			return err
		}
		server, err := s.loadServerRecord(ctx, serverAddress)
		if err != nil {
			return err
		}

		authority, err := s.deriver.Delegation(inv.Caller, serverAddress)
		if err != nil {
			return types.NewInternalServiceError(err)
		}
		rec, err := loadRecord(ctx, authority, s.db.GetDelegation)
		if err != nil {
			return err
		}

		now := time.Now().Unix()
		// the slot is seeded with the caller, so an active one is always
		// theirs and DelegateAlreadyInitialized is never returned here
		created, err := rec.activateOrAuthorize(inv.Caller, delegationOwner, func() (*model.DelegationDocument, error) {
			vault, err := s.tokens.AssociatedAddress(authority.Address())
			if err != nil {
				return nil, types.NewInternalServiceError(err)
			}
			if err := addUser(registry); err != nil {
				return nil, err
			}
			return &model.DelegationDocument{
				Address:     authority.Address().String(),
				Owner:       inv.Caller.String(),
				Server:      server.Address,
				Initialized: true,
				Bump:        authority.Bump(),
				Vault:       vault.String(),
				CreatedAt:   now,
			}, nil
		}, types.DelegateAlreadyInitialized)
		if err != nil {
			return err
		}
		delegation := rec.doc

		// new delegations and the ones left behind by a removed server are
		// linked to the current server incarnation
		if created || delegation.ServerIncarnation != server.Incarnation {
			if server.TotalDelegators == ^uint32(0) {
				return types.NewLedgerError(types.NumberOverflow)
			}
			server.TotalDelegators++
			delegation.ServerIncarnation = server.Incarnation
		}

		stake, err := types.CheckedAdd(delegation.Stake, scaled)
		if err != nil {
			return err
		}
		if stake > types.MaximumStake {
			return types.NewLedgerError(types.DelegateExceedsMaxStakeLimit)
		}
		total, err := types.CheckedAdd(server.Total, scaled)
		if err != nil {
			return err
		}
		totalStake, err := types.CheckedAdd(registry.TotalStake, scaled)
		if err != nil {
			return err
		}

		if err := s.fundVault(ctx, inv.Caller, authority.Address(), scaled); err != nil {
			return err
		}
		delegation.Stake = stake
		delegation.UpdatedAt = now
		server.Total = total
		server.UpdatedAt = now
		registry.TotalStake = totalStake

		if err := s.saveDelegationState(ctx, registry, server, delegation); err != nil {
			return err
		}

		log.Ctx(ctx).Info().
			Str("delegation", delegation.Address).
			Str("server", server.Address).
			Bool("created", created).
			Uint64("stake", delegation.Stake).
			Msg("delegated deposit")

		event := delegationEvent(types.EventTokenDelegatedDeposited, delegation, server)
		event.Amount = scaled
		scope.emit(event)
		return nil
	})
}

// DelegatedWithdraw pays delegated stake back to the delegator
func (s *Service) DelegatedWithdraw(ctx context.Context, inv Invocation, serverAddress pda.Address, amount uint64) error {
	return s.execute(ctx, OpDelegatedWithdraw, inv, func(ctx context.Context, scope *txScope) error {
		if err := checkCaller(inv); err != nil {
			return err
		}
		if err := s.checkMint(inv); err != nil {
			return err
		}
		scaled, err := types.ToBaseUnits(amount)
		if err != nil {
			return err
		}
		registry, err := s.loadRegistry(ctx)
		if err != nil {
			return err
		}

		rec, delegation, err := s.loadOwnDelegation(ctx, inv.Caller, serverAddress)
		if err != nil {
			return err
		}
		if scaled > delegation.Stake {
			return types.NewLedgerError(types.InsufficientFunds)
		}
		remaining := delegation.Stake - scaled
		if remaining > 0 && remaining < types.DelegateMinimumStake {
			return types.NewLedgerError(types.DelegateExceedsMaxStakeLimit)
		}

		server, err := s.loadServerRecord(ctx, serverAddress)
		if err != nil {
			return err
		}
		total, err := types.CheckedSub(server.Total, scaled)
		if err != nil {
			return err
		}
		totalStake, err := types.CheckedSub(registry.TotalStake, scaled)
		if err != nil {
			return err
		}

		if err := s.payOut(ctx, rec.authority, inv.Caller, scaled); err != nil {
			return err
		}
		now := time.Now().Unix()
		delegation.Stake = remaining
		delegation.UpdatedAt = now
		server.Total = total
		server.UpdatedAt = now
		registry.TotalStake = totalStake

		if err := s.saveDelegationState(ctx, registry, server, delegation); err != nil {
			return err
		}

		event := delegationEvent(types.EventDelegatedTokenWithdrawn, delegation, server)
		event.Amount = scaled
		scope.emit(event)
		return nil
	})
}

// RemoveDelegation closes an empty delegation. It also works when the server
// has been removed in the meantime.
func (s *Service) RemoveDelegation(ctx context.Context, inv Invocation, serverAddress pda.Address) error {
	return s.execute(ctx, OpRemoveDelegation, inv, func(ctx context.Context, scope *txScope) error {
		if err := checkCaller(inv); err != nil {
			return err
		}
		if err := s.checkMint(inv); err != nil {
			return err
		}
		registry, err := s.loadRegistry(ctx)
		if err != nil {
			return err
		}

		rec, delegation, err := s.loadOwnDelegation(ctx, inv.Caller, serverAddress)
		if err != nil {
			return err
		}
		if delegation.Stake != 0 {
			return types.NewLedgerError(types.NonZeroBalance)
		}

		server, err := s.db.GetServer(ctx, serverAddress.String())
		if err != nil && !db.IsNotFoundError(err) {
			return err
		}
		if server != nil && server.Incarnation == delegation.ServerIncarnation {
			if server.TotalDelegators == 0 {
				return types.NewLedgerError(types.NumberOverflow)
			}
			server.TotalDelegators--
			server.UpdatedAt = time.Now().Unix()
			if err := s.db.SaveServer(ctx, server); err != nil {
				return err
			}
		}

		if err := s.closeVault(ctx, rec.authority, inv.Caller); err != nil {
			return err
		}
		if err := removeUser(registry); err != nil {
			return err
		}
		if err := s.db.DeleteDelegation(ctx, delegation.Address); err != nil {
			return err
		}
		if err := s.db.SaveRegistry(ctx, registry); err != nil {
			return err
		}

		event := types.NewLedgerEvent(types.EventDelegatedRemoved)
		event.Owner = delegation.Owner
		event.Delegation = delegation.Address
		event.Server = delegation.Server
		if server != nil {
			event.ServerOwner = server.Owner
			event.Total = server.Total
		}
		scope.emit(event)
		return nil
	})
}

// DelegationAddress derives the record address of the delegation of
// delegator on server
func (s *Service) DelegationAddress(delegator, server pda.Address) (pda.Address, error) {
	authority, err := s.deriver.Delegation(delegator, server)
	if err != nil {
		return pda.Address{}, types.NewInternalServiceError(err)
	}
	return authority.Address(), nil
}

func (s *Service) GetDelegation(ctx context.Context, address pda.Address) (*model.DelegationDocument, error) {
	delegation, err := s.db.GetDelegation(ctx, address.String())
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewLedgerError(types.StakeAccountNotFound)
		}
		return nil, types.NewInternalServiceError(err)
	}
	return delegation, nil
}

func (s *Service) ListDelegationsByServer(ctx context.Context, server pda.Address) ([]*model.DelegationDocument, error) {
	delegations, err := s.db.GetDelegationsByServer(ctx, server.String())
	if err != nil {
		return nil, types.NewInternalServiceError(err)
	}
	return delegations, nil
}

func (s *Service) ListDelegationsByOwner(ctx context.Context, owner pda.Address) ([]*model.DelegationDocument, error) {
	delegations, err := s.db.GetDelegationsByOwner(ctx, owner.String())
	if err != nil {
		return nil, types.NewInternalServiceError(err)
	}
	return delegations, nil
}

func (s *Service) saveDelegationState(
	ctx context.Context,
	registry *model.RegistryDocument,
	server *model.ServerDocument,
	delegation *model.DelegationDocument,
) error {
	if err := s.db.SaveDelegation(ctx, delegation); err != nil {
		return err
	}
	if err := s.db.SaveServer(ctx, server); err != nil {
		return err
	}
	return s.db.SaveRegistry(ctx, registry)
}

func delegationEvent(
	eventType types.LedgerEventType, delegation *model.DelegationDocument, server *model.ServerDocument,
) *types.LedgerEvent {
	event := types.NewLedgerEvent(eventType)
	event.Owner = delegation.Owner
	event.Delegation = delegation.Address
	event.Server = server.Address
	event.ServerOwner = server.Owner
	event.Name = server.Name
	event.Stake = delegation.Stake
	event.Total = server.Total
	return event
}
