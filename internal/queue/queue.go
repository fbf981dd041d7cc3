package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/babylonlabs-io/staking-queue-client/client"
	queueConfig "github.com/babylonlabs-io/staking-queue-client/config"
	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/rs/zerolog/log"
)

var ErrQueueClosed = errors.New("queue client is closed")

// QueueManager publishes ledger events as json messages to the event queue.
// The client is re-created when its connection was lost.
type QueueManager struct {
	cfg       *config.QueueConfig
	newClient func(cfg *queueConfig.QueueConfig, queueName string) (client.QueueClient, error)

	mu     sync.Mutex
	client client.QueueClient
}

func NewQueueManager(cfg *config.QueueConfig) (*QueueManager, error) {
	qm := &QueueManager{cfg: cfg, newClient: client.NewQueueClient}
	if err := qm.connect(); err != nil {
		return nil, err
	}
	return qm, nil
}

func (qm *QueueManager) connect() error {
	c, err := qm.newClient(&qm.cfg.QueueConfig, qm.cfg.QueueName)
	if err != nil {
		return fmt.Errorf("failed to connect to queue: %w", err)
	}
	qm.client = c
	return nil
}

// PublishEvent sends the event and waits for the broker confirm
func (qm *QueueManager) PublishEvent(ctx context.Context, event *types.LedgerEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	return retry.Do(
		func() error {
			return qm.send(ctx, string(body))
		},
		retry.Context(ctx),
		retry.Attempts(qm.cfg.MaxRetryAttempts),
		retry.Delay(qm.cfg.RetryInterval),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().
				Uint("attempt", n+1).
				Str("event_id", event.ID).
				Err(err).
				Msg("failed to publish event, retrying")
		}),
	)
}

func (qm *QueueManager) send(ctx context.Context, body string) error {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	if qm.client != nil && qm.client.Ping(ctx) != nil {
		qm.stop()
	}
	if qm.client == nil {
		if err := qm.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, qm.cfg.PublishTimeout)
	defer cancel()
	return qm.client.SendMessage(ctx, body)
}

func (qm *QueueManager) Ping(ctx context.Context) error {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	if qm.client == nil {
		return ErrQueueClosed
	}
	return qm.client.Ping(ctx)
}

// stop releases the current client. qm.mu must be held.
func (qm *QueueManager) stop() {
	if err := qm.client.Stop(); err != nil {
		log.Warn().Err(err).Msg("failed to stop queue client")
	}
	qm.client = nil
}

// Shutdown gracefully stops the interaction with the queue, ensuring all resources are properly released.
func (qm *QueueManager) Shutdown() {
	log.Info().Msg("Shutting down queue manager")

	qm.mu.Lock()
	defer qm.mu.Unlock()

	if qm.client != nil {
		qm.stop()
	}
}
