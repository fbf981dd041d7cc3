package queue

import (
	"context"

	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/rs/zerolog/log"
)

// LogPublisher writes events to the log. It is used when the queue is disabled.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) PublishEvent(ctx context.Context, event *types.LedgerEvent) error {
	log.Ctx(ctx).Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type.String()).
		Str("owner", event.Owner).
		Str("server", event.Server).
		Uint64("amount", event.Amount).
		Uint64("stake", event.Stake).
		Uint64("total", event.Total).
		Msg("ledger event")
	return nil
}

func (p *LogPublisher) Ping(ctx context.Context) error {
	return nil
}

func (p *LogPublisher) Shutdown() {}
