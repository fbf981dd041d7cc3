package services

import (
	"context"
	"time"

	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/rs/zerolog/log"
)

const (
	OpInitialize        = "initialize"
	OpAddServer         = "add_server"
	OpUpdateServer      = "update_server"
	OpRemoveServer      = "remove_server"
	OpDeposit           = "deposit"
	OpWithdraw          = "withdraw"
	OpDelegatedDeposit  = "d_deposit"
	OpDelegatedWithdraw = "d_withdraw"
	OpRemoveDelegation  = "d_remove"
	OpMintTokens        = "mint_tokens"
)

// Initialize creates the registry with zero totals. The caller becomes the
// registry admin.
func (s *Service) Initialize(ctx context.Context, inv Invocation) error {
	return s.execute(ctx, OpInitialize, inv, func(ctx context.Context, scope *txScope) error {
		if err := checkCaller(inv); err != nil {
			return err
		}

		existing, err := s.db.GetRegistry(ctx)
		if err != nil && !db.IsNotFoundError(err) {
			return err
		}
		if existing != nil && existing.Initialized {
			return types.NewLedgerError(types.AlreadyInitialized)
		}

		authority, err := s.deriver.Registry()
		if err != nil {
			return types.NewInternalServiceError(err)
		}

		registry := &model.RegistryDocument{
			ID:            model.RegistryID,
			Address:       authority.Address().String(),
			Bump:          authority.Bump(),
			Admin:         inv.Caller.String(),
			Initialized:   true,
			InitializedAt: time.Now().Unix(),
		}
		if err := s.db.SaveRegistry(ctx, registry); err != nil {
			return err
		}

		log.Ctx(ctx).Info().
			Str("registry", registry.Address).
			Str("admin", registry.Admin).
			Msg("registry initialized")

		event := types.NewLedgerEvent(types.EventRegistryInitialized)
		event.Admin = registry.Admin
		scope.emit(event)
		return nil
	})
}

func (s *Service) GetRegistry(ctx context.Context) (*model.RegistryDocument, error) {
	registry, err := s.loadRegistry(ctx)
	if err != nil {
		return nil, types.AsError(err)
	}
	return registry, nil
}
