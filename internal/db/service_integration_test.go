//go:build integration

package db_test

import (
	"testing"

	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/queue"
	"github.com/nodestake/staking-ledger/internal/services"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/nodestake/staking-ledger/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLedgerOnMongo runs a full server lifecycle through the service so that
// every operation commits in a real mongo transaction
func TestLedgerOnMongo(t *testing.T) {
	ctx := t.Context()
	t.Cleanup(func() {
		resetDatabase(t)
	})

	faucet := testutil.NewWallet(t)
	cfg := &config.Config{Ledger: config.LedgerConfig{MintAuthority: faucet.Address().String()}}
	require.NoError(t, cfg.Ledger.Validate())

	svc, err := services.NewService(cfg, db.NewDbWithMetrics(testDB), queue.NewLogPublisher())
	require.NoError(t, err)

	admin := testutil.NewWallet(t)
	owner := testutil.NewWallet(t)
	delegator := testutil.NewWallet(t)
	inv := func(w pda.Wallet) services.Invocation {
		return services.Invocation{Caller: w.Address(), Mint: svc.Mint()}
	}
	serverKey := []byte("mongo-node")

	require.NoError(t, svc.Initialize(ctx, inv(admin)))
	require.NoError(t, svc.MintTokens(ctx, faucet, 0, owner.Address(), 3000))
	require.NoError(t, svc.MintTokens(ctx, faucet, 0, delegator.Address(), 500))

	require.NoError(t, svc.AddServer(ctx, inv(owner), serverKey, "node", 2000))
	serverAddress, err := svc.ServerAddress(owner.Address(), serverKey)
	require.NoError(t, err)
	require.NoError(t, svc.DelegatedDeposit(ctx, inv(delegator), serverAddress, 500))

	t.Run("rejected operation leaves no trace", func(t *testing.T) {
		err := svc.Deposit(ctx, inv(owner), serverKey, 9000)
		assert.True(t, types.HasErrorCode(err, types.ExceedsMaxStakeLimit))

		balance, err := svc.Balance(ctx, owner.Address())
		require.NoError(t, err)
		assert.Equal(t, 1000*types.BaseUnitsPerToken, balance)
	})

	t.Run("invariants hold", func(t *testing.T) {
		stats, err := svc.CheckInvariants(ctx)
		require.NoError(t, err)
		assert.True(t, stats.Consistent, stats.Violations)
		assert.Equal(t, 2500*types.BaseUnitsPerToken, stats.RegistryTotalStake)
		assert.Equal(t, uint32(2), stats.RegistryTotalUsers)
	})

	t.Run("close everything", func(t *testing.T) {
		require.NoError(t, svc.DelegatedWithdraw(ctx, inv(delegator), serverAddress, 500))
		require.NoError(t, svc.RemoveDelegation(ctx, inv(delegator), serverAddress))
		require.NoError(t, svc.Withdraw(ctx, inv(owner), serverKey, 2000))
		require.NoError(t, svc.RemoveServer(ctx, inv(owner), serverKey))

		registry, err := svc.GetRegistry(ctx)
		require.NoError(t, err)
		assert.Zero(t, registry.TotalStake)
		assert.Zero(t, registry.TotalUsers)

		balance, err := svc.Balance(ctx, owner.Address())
		require.NoError(t, err)
		assert.Equal(t, 3000*types.BaseUnitsPerToken, balance)
	})
}
