package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/babylonlabs-io/staking-queue-client/client"
	queueConfig "github.com/babylonlabs-io/staking-queue-client/config"
	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records sent messages. Sends fail while failSends is positive.
type fakeClient struct {
	client.QueueClient

	sent      []string
	failSends int
	closed    bool
	stopped   bool
}

func (c *fakeClient) SendMessage(ctx context.Context, messageBody string) error {
	if c.failSends > 0 {
		c.failSends--
		return errors.New("broker unavailable")
	}
	c.sent = append(c.sent, messageBody)
	return nil
}

func (c *fakeClient) Ping(ctx context.Context) error {
	if c.closed {
		return errors.New("rabbitMQ connection is closed")
	}
	return nil
}

func (c *fakeClient) Stop() error {
	c.stopped = true
	return nil
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		QueueConfig: queueConfig.QueueConfig{
			QueueUser:     "user",
			QueuePassword: "password",
			Url:           "127.0.0.1:1",
		},
		Enabled:          true,
		QueueName:        "test",
		PublishTimeout:   time.Second,
		MaxRetryAttempts: 3,
		RetryInterval:    time.Millisecond,
	}
}

// newTestManager returns a manager whose clients are handed out from clients
func newTestManager(t *testing.T, clients ...*fakeClient) *QueueManager {
	t.Helper()
	qm := &QueueManager{
		cfg: testQueueConfig(),
		newClient: func(cfg *queueConfig.QueueConfig, queueName string) (client.QueueClient, error) {
			require.Equal(t, "test", queueName)
			require.NotEmpty(t, clients, "no client left")
			c := clients[0]
			clients = clients[1:]
			return c, nil
		},
	}
	require.NoError(t, qm.connect())
	return qm
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher()
	require.NoError(t, p.PublishEvent(t.Context(), types.NewLedgerEvent(types.EventServerAdded)))
	require.NoError(t, p.Ping(t.Context()))
	p.Shutdown()
}

func TestNewQueueManager_Unreachable(t *testing.T) {
	_, err := NewQueueManager(testQueueConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to queue")
}

func TestQueueManager(t *testing.T) {
	t.Run("publishes json events", func(t *testing.T) {
		c := &fakeClient{}
		qm := newTestManager(t, c)

		event := types.NewLedgerEvent(types.EventServerAdded)
		require.NoError(t, qm.PublishEvent(t.Context(), event))
		require.Len(t, c.sent, 1)

		var got types.LedgerEvent
		require.NoError(t, json.Unmarshal([]byte(c.sent[0]), &got))
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, event.Type, got.Type)
	})

	t.Run("retries failed sends", func(t *testing.T) {
		c := &fakeClient{failSends: 2}
		qm := newTestManager(t, c)

		require.NoError(t, qm.PublishEvent(t.Context(), types.NewLedgerEvent(types.EventTokenDeposited)))
		assert.Len(t, c.sent, 1)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		c := &fakeClient{failSends: 3}
		qm := newTestManager(t, c)

		err := qm.PublishEvent(t.Context(), types.NewLedgerEvent(types.EventTokenDeposited))
		require.Error(t, err)
		assert.Empty(t, c.sent)
	})

	t.Run("reconnects a closed client", func(t *testing.T) {
		lost := &fakeClient{}
		fresh := &fakeClient{}
		qm := newTestManager(t, lost, fresh)
		lost.closed = true

		require.NoError(t, qm.PublishEvent(t.Context(), types.NewLedgerEvent(types.EventTokenWithdrawn)))
		assert.True(t, lost.stopped)
		assert.Empty(t, lost.sent)
		assert.Len(t, fresh.sent, 1)
		require.NoError(t, qm.Ping(t.Context()))
	})

	t.Run("shutdown stops the client", func(t *testing.T) {
		c := &fakeClient{}
		qm := newTestManager(t, c)
		qm.Shutdown()

		assert.True(t, c.stopped)
		assert.ErrorIs(t, qm.Ping(t.Context()), ErrQueueClosed)
		qm.Shutdown()
	})
}
