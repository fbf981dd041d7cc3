package services

import (
	"context"
	"net/http"

	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/token"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/rs/zerolog/log"
)

// MintTokens credits amount whole tokens to recipient. authority must be the
// configured mint authority. A non zero nonce is consumed like the one of any
// other signed invocation.
func (s *Service) MintTokens(ctx context.Context, authority token.Signer, nonce uint64, recipient pda.Address, amount uint64) error {
	inv := Invocation{Caller: authority.Address(), Mint: s.mint, Nonce: nonce}
	return s.execute(ctx, OpMintTokens, inv, func(ctx context.Context, scope *txScope) error {
		if recipient.IsZero() {
			return types.NewErrorWithMsg(http.StatusBadRequest, types.BadRequest, "missing recipient")
		}
		scaled, err := types.ToBaseUnits(amount)
		if err != nil {
			return err
		}
		if err := s.tokens.MintTo(ctx, recipient, scaled, authority); err != nil {
			return err
		}

		log.Ctx(ctx).Info().
			Str("recipient", recipient.String()).
			Str("amount", types.FormatAmount(scaled)).
			Msg("minted tokens")
		return nil
	})
}

// Balance is the token balance of owner in base units
func (s *Service) Balance(ctx context.Context, owner pda.Address) (uint64, error) {
	balance, err := s.tokens.Balance(ctx, owner)
	if err != nil {
		return 0, types.NewInternalServiceError(err)
	}
	return balance, nil
}
