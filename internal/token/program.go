package token

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/rs/zerolog/log"
)

var (
	ProgramID           = pda.MustParseAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedProgramID = pda.MustParseAddress("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// Store is the part of the ledger store holding token accounts
type Store interface {
	GetTokenAccount(ctx context.Context, address string) (*model.TokenAccountDocument, error)
	InsertTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error
	SaveTokenAccount(ctx context.Context, account *model.TokenAccountDocument) error
	DeleteTokenAccount(ctx context.Context, address string) error
}

// Signer is an identity allowed to move funds out of accounts it owns. Both
// wallets and derived authorities are signers.
type Signer interface {
	Address() pda.Address
	Verify() error
}

// Program is a single mint custodial token ledger. It only moves value
// between accounts it tracks, and all calls join the store transaction
// carried by ctx.
type Program struct {
	store         Store
	mint          pda.Address
	mintAuthority pda.Address
	associated    *pda.Deriver
}

func NewProgram(store Store, mint, mintAuthority pda.Address, cacheSize int) (*Program, error) {
	deriver, err := pda.NewDeriver(AssociatedProgramID, cacheSize)
	if err != nil {
		return nil, err
	}
	return &Program{
		store:         store,
		mint:          mint,
		mintAuthority: mintAuthority,
		associated:    deriver,
	}, nil
}

func (p *Program) Mint() pda.Address {
	return p.mint
}

// AssociatedAddress is the canonical account of owner for the program mint
func (p *Program) AssociatedAddress(owner pda.Address) (pda.Address, error) {
	auth, err := p.associated.Derive(owner[:], ProgramID[:], p.mint[:])
	if err != nil {
		return pda.Address{}, fmt.Errorf("failed to derive associated account of %s: %w", owner, err)
	}
	return auth.Address(), nil
}

// Account loads a token account by address
func (p *Program) Account(ctx context.Context, address pda.Address) (*model.TokenAccountDocument, error) {
	return p.store.GetTokenAccount(ctx, address.String())
}

// GetOrCreateAccount returns the associated account of owner, creating an
// empty one when absent
func (p *Program) GetOrCreateAccount(ctx context.Context, owner pda.Address) (*model.TokenAccountDocument, error) {
	address, err := p.AssociatedAddress(owner)
	if err != nil {
		return nil, err
	}

	account, err := p.store.GetTokenAccount(ctx, address.String())
	if err == nil {
		return account, nil
	}
	if !db.IsNotFoundError(err) {
		return nil, err
	}

	account = &model.TokenAccountDocument{
		Address: address.String(),
		Mint:    p.mint.String(),
		Owner:   owner.String(),
	}
	if err := p.store.InsertTokenAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create token account %s: %w", address, err)
	}
	log.Ctx(ctx).Debug().
		Str("account", account.Address).
		Str("owner", account.Owner).
		Msg("created token account")
	return account, nil
}

// Balance returns the balance of the associated account of owner, zero if
// it does not exist
func (p *Program) Balance(ctx context.Context, owner pda.Address) (uint64, error) {
	address, err := p.AssociatedAddress(owner)
	if err != nil {
		return 0, err
	}
	account, err := p.store.GetTokenAccount(ctx, address.String())
	if err != nil {
		if db.IsNotFoundError(err) {
			return 0, nil
		}
		return 0, err
	}
	return account.Amount, nil
}

// Transfer moves amount from one account to another. authority must own the
// source account.
func (p *Program) Transfer(ctx context.Context, from, to pda.Address, authority Signer, amount uint64) error {
	source, err := p.loadAccount(ctx, from)
	if err != nil {
		return err
	}
	destination, err := p.loadAccount(ctx, to)
	if err != nil {
		return err
	}
	if err := p.authorize(source, authority); err != nil {
		return err
	}

	if source.Amount < amount {
		return types.NewLedgerError(types.InsufficientTokenBalance)
	}
	if from == to {
		return nil
	}

	credited, err := types.CheckedAdd(destination.Amount, amount)
	if err != nil {
		return err
	}
	source.Amount -= amount
	destination.Amount = credited

	if err := p.store.SaveTokenAccount(ctx, source); err != nil {
		return err
	}
	return p.store.SaveTokenAccount(ctx, destination)
}

// Close deletes an empty account. destination only receives the account's
// storage, the balance must already be zero.
func (p *Program) Close(ctx context.Context, account, destination pda.Address, authority Signer) error {
	acc, err := p.loadAccount(ctx, account)
	if err != nil {
		return err
	}
	if err := p.authorize(acc, authority); err != nil {
		return err
	}
	if acc.Amount != 0 {
		return types.NewLedgerError(types.VaultNotEmpty)
	}
	if destination.IsZero() {
		return types.NewValidationFailedError(fmt.Errorf("close of %s requires a destination", account))
	}

	if err := p.store.DeleteTokenAccount(ctx, acc.Address); err != nil {
		return err
	}
	log.Ctx(ctx).Debug().
		Str("account", acc.Address).
		Str("destination", destination.String()).
		Msg("closed token account")
	return nil
}

// MintTo credits new tokens to the associated account of recipient. Only the
// configured mint authority can mint.
func (p *Program) MintTo(ctx context.Context, recipient pda.Address, amount uint64, authority Signer) error {
	if p.mintAuthority.IsZero() || authority.Address() != p.mintAuthority {
		return types.NewLedgerError(types.Unauthorized)
	}
	if err := authority.Verify(); err != nil {
		return types.NewError(http.StatusForbidden, types.Unauthorized, err)
	}

	account, err := p.GetOrCreateAccount(ctx, recipient)
	if err != nil {
		return err
	}
	credited, err := types.CheckedAdd(account.Amount, amount)
	if err != nil {
		return err
	}
	account.Amount = credited
	return p.store.SaveTokenAccount(ctx, account)
}

func (p *Program) loadAccount(ctx context.Context, address pda.Address) (*model.TokenAccountDocument, error) {
	account, err := p.store.GetTokenAccount(ctx, address.String())
	if err != nil {
		if db.IsNotFoundError(err) {
			return nil, types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, "token account "+address.String()+" not found")
		}
		return nil, err
	}
	if account.Mint != p.mint.String() {
		return nil, types.NewLedgerError(types.InvalidMint)
	}
	return account, nil
}

func (p *Program) authorize(account *model.TokenAccountDocument, authority Signer) error {
	if authority == nil || authority.Address().String() != account.Owner {
		return types.NewLedgerError(types.Unauthorized)
	}
	if err := authority.Verify(); err != nil {
		return types.NewError(http.StatusForbidden, types.Unauthorized, err)
	}
	return nil
}
