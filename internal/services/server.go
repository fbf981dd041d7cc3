package services

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/rs/zerolog/log"
)

func validateName(name string) error {
	if len(name) > types.MaxNameLength {
		return types.NewLedgerError(types.NameTooLong)
	}
	return nil
}

func validateServerKey(serverKey []byte) error {
	if len(serverKey) > types.MaxServerKeyLength {
		return types.NewLedgerError(types.InvalidArgument)
	}
	return nil
}

// loadOwnServer loads the server the caller registered under serverKey. The
// address is derived from the caller, so no other identity can reach it.
func (s *Service) loadOwnServer(
	ctx context.Context, caller pda.Address, serverKey []byte,
) (*record[model.ServerDocument], *model.ServerDocument, error) {
	authority, err := s.deriver.Server(caller, serverKey)
	if err != nil {
		return nil, nil, types.NewInternalServiceError(err)
	}
	rec, err := loadRecord(ctx, authority, s.db.GetServer)
	if err != nil {
		return nil, nil, err
	}
	server, err := rec.authorize(caller, serverOwner)
	if err != nil {
		return nil, nil, err
	}
	return rec, server, nil
}

// AddServer registers a server, or adds stake to it when the caller already
// owns it. amount is in whole tokens.
func (s *Service) AddServer(ctx context.Context, inv Invocation, serverKey []byte, name string, amount uint64) error {
	return s.execute(ctx, OpAddServer, inv, func(ctx context.Context, scope *txScope) error {
		if err := checkCaller(inv); err != nil {
			return err
		}
		if err := s.checkMint(inv); err != nil {
			return err
		}
		if err := validateName(name); err != nil {
			return err
		}
		if err := validateServerKey(serverKey); err != nil {
			return err
		}
		scaled, err := types.ToBaseUnits(amount)
		if err != nil {
			return err
		}
		if scaled < types.MinimumStake || scaled > types.MaximumStake {
			return types.NewLedgerError(types.MoreThan1000FewerThan10000)
		}

		registry, err := s.loadRegistry(ctx)
		if err != nil {
			return err
		}

		authority, err := s.deriver.Server(inv.Caller, serverKey)
		if err != nil {
			return types.NewInternalServiceError(err)
		}
		rec, err := loadRecord(ctx, authority, s.db.GetServer)
		if err != nil {
			return err
		}
		if rec.state == recordAbsent {
			// the first registrant of a server key owns it until removal
			if err := s.checkServerKeyUnclaimed(ctx, serverKey); err != nil {
				return err
			}
		}

		now := time.Now().Unix()
		created, err := rec.activateOrAuthorize(inv.Caller, serverOwner, func() (*model.ServerDocument, error) {
			vault, err := s.tokens.AssociatedAddress(authority.Address())
			if err != nil {
				return nil, types.NewInternalServiceError(err)
			}
			if err := addUser(registry); err != nil {
				return nil, err
			}
			registry.ServerSequence++
			return &model.ServerDocument{
				Address:       authority.Address().String(),
				Owner:         inv.Caller.String(),
				Name:          name,
				ServerKey:     serverKey,
				ServerKeyHash: hex.EncodeToString(pda.ServerKeyHash(serverKey)),
				Initialized:   true,
				Bump:          authority.Bump(),
				Vault:         vault.String(),
				Incarnation:   registry.ServerSequence,
				CreatedAt:     now,
			}, nil
		}, types.InfoAlreadyInitialized)
		if err != nil {
			return err
		}
		server := rec.doc

		stake, err := types.CheckedAdd(server.Stake, scaled)
		if err != nil {
			return err
		}
		if stake > types.MaximumStake {
			return types.NewLedgerError(types.ExceedsMaxStakeLimit)
		}

		if err := s.fundVault(ctx, inv.Caller, authority.Address(), scaled); err != nil {
			return err
		}
		if err := creditServer(registry, server, scaled); err != nil {
			return err
		}
		server.UpdatedAt = now

		if err := s.db.SaveServer(ctx, server); err != nil {
			return err
		}
		if err := s.db.SaveRegistry(ctx, registry); err != nil {
			return err
		}

		log.Ctx(ctx).Info().
			Str("server", server.Address).
			Bool("created", created).
			Uint64("incarnation", server.Incarnation).
			Uint64("stake", server.Stake).
			Msg("server added")

		event := serverEvent(types.EventServerAdded, server)
		event.Amount = scaled
		scope.emit(event)
		return nil
	})
}

// UpdateServer renames a server owned by the caller
func (s *Service) UpdateServer(ctx context.Context, inv Invocation, serverKey []byte, name string) error {
	return s.execute(ctx, OpUpdateServer, inv, func(ctx context.Context, scope *txScope) error {
		if err := checkCaller(inv); err != nil {
			return err
		}
		if err := validateName(name); err != nil {
			return err
		}
		if err := validateServerKey(serverKey); err != nil {
			return err
		}
		if _, err := s.loadRegistry(ctx); err != nil {
			return err
		}

		_, server, err := s.loadOwnServer(ctx, inv.Caller, serverKey)
		if err != nil {
			return err
		}

		server.Name = name
		server.UpdatedAt = time.Now().Unix()
		if err := s.db.SaveServer(ctx, server); err != nil {
			return err
		}

		scope.emit(serverEvent(types.EventServerUpdated, server))
		return nil
	})
}

// RemoveServer closes the vault and deletes the record of an empty server
func (s *Service) RemoveServer(ctx context.Context, inv Invocation, serverKey []byte) error {
	return s.execute(ctx, OpRemoveServer, inv, func(ctx context.Context, scope *txScope) error {
		if err := checkCaller(inv); err != nil {
			return err
		}
		if err := s.checkMint(inv); err != nil {
			return err
		}
		if err := validateServerKey(serverKey); err != nil {
			return err
		}
		registry, err := s.loadRegistry(ctx)
		if err != nil {
			return err
		}

		rec, server, err := s.loadOwnServer(ctx, inv.Caller, serverKey)
		if err != nil {
			return err
		}
		if server.Total != 0 {
			return types.NewLedgerError(types.NonZeroBalance)
		}

		if err := s.closeVault(ctx, rec.authority, inv.Caller); err != nil {
			return err
		}
		if err := removeUser(registry); err != nil {
			return err
		}
		if err := s.db.DeleteServer(ctx, server.Address); err != nil {
			return err
		}
		if err := s.db.SaveRegistry(ctx, registry); err != nil {
			return err
		}

		log.Ctx(ctx).Info().
			Str("server", server.Address).
			Uint32("orphaned_delegators", server.TotalDelegators).
			Msg("server removed")

		scope.emit(serverEvent(types.EventServerRemoved, server))
		return nil
	})
}

// Deposit adds stake to a server owned by the caller
func (s *Service) Deposit(ctx context.Context, inv Invocation, serverKey []byte, amount uint64) error {
	return s.execute(ctx, OpDeposit, inv, func(ctx context.Context, scope *txScope) error {
		if err := checkCaller(inv); err != nil {
			return err
		}
		if err := s.checkMint(inv); err != nil {
			return err
		}
		if err := validateServerKey(serverKey); err != nil {
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

		rec, server, err := s.loadOwnServer(ctx, inv.Caller, serverKey)
		if err != nil {
			return err
		}

		stake, err := types.CheckedAdd(server.Stake, scaled)
		if err != nil {
			return err
		}
		if stake > types.MaximumStake {
			return types.NewLedgerError(types.ExceedsMaxStakeLimit)
		}
		if stake > 0 && stake < types.MinimumStake {
			return types.NewLedgerError(types.MoreThan1000FewerThan10000)
		}

		if err := s.fundVault(ctx, inv.Caller, rec.authority.Address(), scaled); err != nil {
			return err
		}
		if err := creditServer(registry, server, scaled); err != nil {
			return err
		}
		server.UpdatedAt = time.Now().Unix()

		if err := s.db.SaveServer(ctx, server); err != nil {
			return err
		}
		if err := s.db.SaveRegistry(ctx, registry); err != nil {
			return err
		}

		event := serverEvent(types.EventTokenDeposited, server)
		event.Amount = scaled
		scope.emit(event)
		return nil
	})
}

// Withdraw pays stake of a server owned by the caller back to the caller
func (s *Service) Withdraw(ctx context.Context, inv Invocation, serverKey []byte, amount uint64) error {
	return s.execute(ctx, OpWithdraw, inv, func(ctx context.Context, scope *txScope) error {
		if err := checkCaller(inv); err != nil {
			return err
		}
		if err := s.checkMint(inv); err != nil {
			return err
		}
		if err := validateServerKey(serverKey); err != nil {
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

		rec, server, err := s.loadOwnServer(ctx, inv.Caller, serverKey)
		if err != nil {
			return err
		}

		if scaled > server.Stake {
			return types.NewLedgerError(types.InsufficientFunds)
		}
		remaining := server.Stake - scaled
		if remaining > 0 && remaining < types.MinimumStake {
			return types.NewLedgerError(types.MoreThan1000FewerThan10000)
		}

		if err := s.payOut(ctx, rec.authority, inv.Caller, scaled); err != nil {
			return err
		}
		if err := debitServer(registry, server, scaled); err != nil {
			return err
		}
		server.UpdatedAt = time.Now().Unix()

		if err := s.db.SaveServer(ctx, server); err != nil {
			return err
		}
		if err := s.db.SaveRegistry(ctx, registry); err != nil {
			return err
		}

		event := serverEvent(types.EventTokenWithdrawn, server)
		event.Amount = scaled
		scope.emit(event)
		return nil
	})
}

// ServerAddress derives the record address of a server
func (s *Service) ServerAddress(owner pda.Address, serverKey []byte) (pda.Address, error) {
	authority, err := s.deriver.Server(owner, serverKey)
	if err != nil {
		return pda.Address{}, types.NewInternalServiceError(err)
	}
	return authority.Address(), nil
}

func (s *Service) GetServer(ctx context.Context, address pda.Address) (*model.ServerDocument, error) {
	server, err := s.db.GetServer(ctx, address.String())
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewLedgerError(types.StakeAccountNotFound)
		}
		return nil, types.NewInternalServiceError(err)
	}
	return server, nil
}

// ListServers returns all servers, or only those of owner when it is set
func (s *Service) ListServers(ctx context.Context, owner pda.Address) ([]*model.ServerDocument, error) {
	filter := ""
	if !owner.IsZero() {
		filter = owner.String()
	}
	servers, err := s.db.ListServers(ctx, filter)
	if err != nil {
		return nil, types.NewInternalServiceError(err)
	}
	return servers, nil
}

func (s *Service) checkServerKeyUnclaimed(ctx context.Context, serverKey []byte) error {
	_, err := s.db.GetServerByKeyHash(ctx, hex.EncodeToString(pda.ServerKeyHash(serverKey)))
	if err == nil {
		return types.NewLedgerError(types.InfoAlreadyInitialized)
	}
	if db.IsNotFoundError(err) {
		return nil
	}
	return err
}

// creditServer adds owner stake to a server and to the registry total
func creditServer(registry *model.RegistryDocument, server *model.ServerDocument, amount uint64) error {
	stake, err := types.CheckedAdd(server.Stake, amount)
	if err != nil {
		return err
	}
	total, err := types.CheckedAdd(server.Total, amount)
	if err != nil {
		return err
	}
	totalStake, err := types.CheckedAdd(registry.TotalStake, amount)
	if err != nil {
		return err
	}
	server.Stake, server.Total, registry.TotalStake = stake, total, totalStake
	return nil
}

func debitServer(registry *model.RegistryDocument, server *model.ServerDocument, amount uint64) error {
	stake, err := types.CheckedSub(server.Stake, amount)
	if err != nil {
		return err
	}
	total, err := types.CheckedSub(server.Total, amount)
	if err != nil {
		return err
	}
	totalStake, err := types.CheckedSub(registry.TotalStake, amount)
	if err != nil {
		return err
	}
	server.Stake, server.Total, registry.TotalStake = stake, total, totalStake
	return nil
}

func serverEvent(eventType types.LedgerEventType, server *model.ServerDocument) *types.LedgerEvent {
	event := types.NewLedgerEvent(eventType)
	event.Owner = server.Owner
	event.Server = server.Address
	event.ServerOwner = server.Owner
	event.Name = server.Name
	event.ServerKey = hex.EncodeToString(server.ServerKey)
	event.Stake = server.Stake
	event.Total = server.Total
	return event
}
