package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/observability/metrics"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/token"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/rs/zerolog/log"
)

// EventPublisher delivers ledger events once the operation that produced them
// has committed
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *types.LedgerEvent) error
}

// Invocation identifies who calls an operation and with which mint. Caller is
// expected to be authenticated already. Nonce is the signed request nonce; it
// must exceed the last one accepted from Caller and is recorded in the same
// transaction as the operation. Zero skips the check for in-process callers
// holding the key.
type Invocation struct {
	Caller pda.Address
	Mint   pda.Address
	Nonce  uint64
}

type Service struct {
	cfg       *config.Config
	db        db.DbInterface
	deriver   *pda.Deriver
	tokens    *token.Program
	publisher EventPublisher
	mint      pda.Address
}

func NewService(cfg *config.Config, db db.DbInterface, publisher EventPublisher) (*Service, error) {
	deriver, err := pda.NewDeriver(cfg.Ledger.ProgramAddress(), cfg.Ledger.AuthorityCacheSize)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewProgram(db, cfg.Ledger.MintAddress(), cfg.Ledger.MintAuthorityAddress(), cfg.Ledger.AuthorityCacheSize)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		db:        db,
		deriver:   deriver,
		tokens:    tokens,
		publisher: publisher,
		mint:      cfg.Ledger.MintAddress(),
	}, nil
}

func (s *Service) Mint() pda.Address {
	return s.mint
}

func (s *Service) Deriver() *pda.Deriver {
	return s.deriver
}

func (s *Service) Tokens() *token.Program {
	return s.tokens
}

// txScope collects what an operation produces inside its transaction
type txScope struct {
	events []*types.LedgerEvent
}

func (sc *txScope) emit(event *types.LedgerEvent) {
	sc.events = append(sc.events, event)
}

// execute runs fn in a single store transaction. Events emitted by fn are
// published only after the commit, and are dropped together with the
// mutations when fn or the commit fails.
func (s *Service) execute(
	ctx context.Context, operation string, inv Invocation,
	fn func(ctx context.Context, scope *txScope) error,
) error {
	startTime := time.Now()
	logger := log.Ctx(ctx).With().
		Str("operation", operation).
		Str("caller", inv.Caller.String()).
		Logger()
	ctx = logger.WithContext(ctx)

	var scope *txScope
	err := s.db.RunInTransaction(ctx, func(ctx context.Context) error {
		// the store may run fn again after a conflict
		scope = &txScope{}
		if err := s.consumeNonce(ctx, inv); err != nil {
			return err
		}
		return fn(ctx, scope)
	})

	errorCode := ""
	if err != nil {
		ledgerErr := types.AsError(err)
		errorCode = ledgerErr.ErrorCode.String()
		metrics.RecordOperationDuration(time.Since(startTime), operation, errorCode)

		if ledgerErr.ErrorCode == types.InternalServiceError {
			logger.Error().Err(err).Msg("operation failed")
		} else {
			logger.Debug().Err(err).Str("error_code", errorCode).Msg("operation rejected")
		}
		return ledgerErr
	}
	metrics.RecordOperationDuration(time.Since(startTime), operation, errorCode)

	for _, event := range scope.events {
		s.publish(ctx, event)
	}
	logger.Debug().Dur("duration", time.Since(startTime)).Msg("operation committed")
	return nil
}

func (s *Service) publish(ctx context.Context, event *types.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		metrics.RecordQueueSendError()
		log.Ctx(ctx).Error().
			Err(err).
			Str("event_id", event.ID).
			Str("event_type", event.Type.String()).
			Msg("failed to publish ledger event")
	}
}

func (s *Service) checkMint(inv Invocation) error {
	if inv.Mint != s.mint {
		return types.NewLedgerError(types.InvalidMint)
	}
	return nil
}

func checkCaller(inv Invocation) error {
	if inv.Caller.IsZero() {
		return types.NewErrorWithMsg(http.StatusUnauthorized, types.Unauthenticated, "missing caller")
	}
	if err := pda.Wallet(inv.Caller).Verify(); err != nil {
		return types.NewError(http.StatusUnauthorized, types.Unauthenticated, fmt.Errorf("invalid caller: %w", err))
	}
	return nil
}

// consumeNonce rejects a nonce at or below the last one accepted from the
// caller and records it otherwise
func (s *Service) consumeNonce(ctx context.Context, inv Invocation) error {
	if inv.Nonce == 0 {
		return nil
	}

	signer := inv.Caller.String()
	last, err := s.db.GetSignerNonce(ctx, signer)
	switch {
	case db.IsNotFoundError(err):
		last = &model.SignerNonceDocument{Signer: signer}
	case err != nil:
		return types.NewInternalServiceError(err)
	}

	if inv.Nonce <= last.Nonce {
		return types.NewErrorWithMsg(
			http.StatusUnauthorized, types.Unauthenticated,
			fmt.Sprintf("nonce %d already used, last accepted is %d", inv.Nonce, last.Nonce),
		)
	}

	last.Nonce = inv.Nonce
	last.UpdatedAt = time.Now().Unix()
	if err := s.db.SaveSignerNonce(ctx, last); err != nil {
		return types.NewInternalServiceError(err)
	}
	return nil
}

// Ping reports whether the backing store is reachable
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
