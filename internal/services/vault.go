package services

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/types"
)

// fundVault moves amount from the caller's token account into the vault of
// the record, creating the vault when needed
func (s *Service) fundVault(ctx context.Context, caller, record pda.Address, amount uint64) error {
	vault, err := s.tokens.GetOrCreateAccount(ctx, record)
	if err != nil {
		return err
	}
	source, err := s.tokens.AssociatedAddress(caller)
	if err != nil {
		return types.NewInternalServiceError(err)
	}
	if _, err := s.tokens.Account(ctx, source); err != nil {
		if db.IsNotFoundError(err) {
			return types.NewLedgerError(types.InsufficientTokenBalance)
		}
		return err
	}
	return s.tokens.Transfer(ctx, source, pda.MustParseAddress(vault.Address), pda.Wallet(caller), amount)
}

// payOut moves amount from the record vault to the caller's token account,
// signed by the record authority
func (s *Service) payOut(ctx context.Context, authority *pda.Authority, caller pda.Address, amount uint64) error {
	destination, err := s.tokens.GetOrCreateAccount(ctx, caller)
	if err != nil {
		return err
	}
	vault, err := s.tokens.AssociatedAddress(authority.Address())
	if err != nil {
		return types.NewInternalServiceError(err)
	}
	return s.tokens.Transfer(ctx, vault, pda.MustParseAddress(destination.Address), authority, amount)
}

// closeVault closes the empty vault of the record. A vault that was never
// created is skipped.
func (s *Service) closeVault(ctx context.Context, authority *pda.Authority, destination pda.Address) error {
	vault, err := s.tokens.AssociatedAddress(authority.Address())
	if err != nil {
		return types.NewInternalServiceError(err)
	}
	if _, err := s.tokens.Account(ctx, vault); err != nil {
		if db.IsNotFoundError(err) {
			return nil
		}
		return err
	}
	return s.tokens.Close(ctx, vault, destination, authority)
}
