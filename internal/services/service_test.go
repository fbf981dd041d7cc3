package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nodestake/staking-ledger/internal/config"
	"github.com/nodestake/staking-ledger/internal/db/badgerdb"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/nodestake/staking-ledger/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unit = types.BaseUnitsPerToken

type recordingPublisher struct {
	mu     sync.Mutex
	events []*types.LedgerEvent
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, event *types.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) last() *types.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[len(p.events)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type testEnv struct {
	svc       *Service
	store     *badgerdb.Database
	publisher *recordingPublisher
	faucet    pda.Wallet
	admin     pda.Wallet
}

func newWallet(t *testing.T) pda.Wallet {
	return testutil.NewWallet(t)
}

func newTestConfig(t *testing.T, faucet pda.Wallet) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Ledger: config.LedgerConfig{MintAuthority: faucet.Address().String()},
		Poller: config.PollerConfig{StatsPollingInterval: time.Minute},
	}
	require.NoError(t, cfg.Ledger.Validate())
	return cfg
}

// newTestEnv returns a service on an empty in-memory store
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := badgerdb.New(config.DbConfig{Type: config.DbTypeBadger, InMemory: true, MaxTxRetries: 50})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	faucet := newWallet(t)
	publisher := &recordingPublisher{}
	svc, err := NewService(newTestConfig(t, faucet), store, publisher)
	require.NoError(t, err)

	return &testEnv{
		svc:       svc,
		store:     store,
		publisher: publisher,
		faucet:    faucet,
		admin:     newWallet(t),
	}
}

// newInitializedEnv returns a service with an initialized registry
func newInitializedEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	require.NoError(t, env.svc.Initialize(t.Context(), env.inv(env.admin)))
	return env
}

func (env *testEnv) inv(w pda.Wallet) Invocation {
	return Invocation{Caller: w.Address(), Mint: env.svc.Mint()}
}

// funded returns a new wallet holding amount whole tokens
func (env *testEnv) funded(t *testing.T, amount uint64) pda.Wallet {
	t.Helper()
	w := newWallet(t)
	require.NoError(t, env.svc.MintTokens(t.Context(), env.faucet, 0, w.Address(), amount))
	return w
}

func (env *testEnv) registry(t *testing.T) *model.RegistryDocument {
	t.Helper()
	registry, err := env.svc.GetRegistry(t.Context())
	require.NoError(t, err)
	return registry
}

func (env *testEnv) server(t *testing.T, owner pda.Wallet, serverKey []byte) *model.ServerDocument {
	t.Helper()
	address, err := env.svc.ServerAddress(owner.Address(), serverKey)
	require.NoError(t, err)
	server, err := env.svc.GetServer(t.Context(), address)
	require.NoError(t, err)
	return server
}

func (env *testEnv) serverAddress(t *testing.T, owner pda.Wallet, serverKey []byte) pda.Address {
	t.Helper()
	address, err := env.svc.ServerAddress(owner.Address(), serverKey)
	require.NoError(t, err)
	return address
}

func (env *testEnv) delegation(t *testing.T, delegator pda.Wallet, server pda.Address) *model.DelegationDocument {
	t.Helper()
	address, err := env.svc.DelegationAddress(delegator.Address(), server)
	require.NoError(t, err)
	delegation, err := env.svc.GetDelegation(t.Context(), address)
	require.NoError(t, err)
	return delegation
}

func (env *testEnv) balance(t *testing.T, owner pda.Address) uint64 {
	t.Helper()
	balance, err := env.svc.Balance(t.Context(), owner)
	require.NoError(t, err)
	return balance
}

// requireConsistent checks the ledger invariants and that every vault holds
// exactly the stake of its record
func (env *testEnv) requireConsistent(t *testing.T) {
	t.Helper()
	ctx := t.Context()

	stats, err := env.svc.CheckInvariants(ctx)
	require.NoError(t, err)
	require.True(t, stats.Consistent, "violations: %v", stats.Violations)

	servers, err := env.svc.ListServers(ctx, pda.Address{})
	require.NoError(t, err)
	for _, server := range servers {
		address := pda.MustParseAddress(server.Address)
		assert.Equal(t, server.Stake, env.balance(t, address), "vault of server %s", server.Address)
		if server.Stake > 0 {
			assert.GreaterOrEqual(t, server.Stake, types.MinimumStake)
			assert.LessOrEqual(t, server.Stake, types.MaximumStake)
		}

		delegations, err := env.svc.ListDelegationsByServer(ctx, address)
		require.NoError(t, err)
		sum := server.Stake
		for _, d := range delegations {
			sum += d.Stake
			assert.Equal(t, d.Stake, env.balance(t, pda.MustParseAddress(d.Address)), "vault of delegation %s", d.Address)
			if d.Stake > 0 {
				assert.GreaterOrEqual(t, d.Stake, types.DelegateMinimumStake)
			}
		}
		assert.Equal(t, server.Total, sum, "total of server %s", server.Address)
	}
}

func assertCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, types.HasErrorCode(err, code), "expected %s, got %v", code, err)
}

func TestInitialize(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)
	owner := env.funded(t, 2000)

	t.Run("operations fail before initialize", func(t *testing.T) {
		err := env.svc.AddServer(ctx, env.inv(owner), []byte("key"), "node", 1000)
		assertCode(t, err, types.RegistryNotInitialized)
		_, err = env.svc.GetRegistry(ctx)
		assertCode(t, err, types.RegistryNotInitialized)
	})

	t.Run("initialize once", func(t *testing.T) {
		require.NoError(t, env.svc.Initialize(ctx, env.inv(env.admin)))

		registry := env.registry(t)
		assert.True(t, registry.Initialized)
		assert.Zero(t, registry.TotalStake)
		assert.Zero(t, registry.TotalUsers)
		assert.Equal(t, env.admin.Address().String(), registry.Admin)

		event := env.publisher.last()
		require.NotNil(t, event)
		assert.Equal(t, types.EventRegistryInitialized, event.Type)
		assert.Equal(t, env.admin.Address().String(), event.Admin)
	})

	t.Run("second initialize fails", func(t *testing.T) {
		events := env.publisher.count()
		err := env.svc.Initialize(ctx, env.inv(newWallet(t)))
		assertCode(t, err, types.AlreadyInitialized)
		assert.Equal(t, env.admin.Address().String(), env.registry(t).Admin)
		assert.Equal(t, events, env.publisher.count())
	})

	t.Run("caller must be a public key", func(t *testing.T) {
		err := env.svc.Initialize(ctx, Invocation{})
		assertCode(t, err, types.Unauthenticated)
	})
}

func TestAddServerValidation(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)

	tests := []struct {
		name      string
		serverKey []byte
		srvName   string
		amount    uint64
		mint      *pda.Address
		code      types.ErrorCode
	}{
		{name: "name too long", serverKey: []byte("k"), srvName: string(make([]byte, 33)), amount: 1000, code: types.NameTooLong},
		{name: "server key too long", serverKey: make([]byte, 66), srvName: "node", amount: 1000, code: types.InvalidArgument},
		{name: "scaling overflow", serverKey: []byte("k"), srvName: "node", amount: ^uint64(0), code: types.NumberOverflow},
		{name: "one unit below minimum", serverKey: []byte("k"), srvName: "node", amount: 999, code: types.MoreThan1000FewerThan10000},
		{name: "one unit above maximum", serverKey: []byte("k"), srvName: "node", amount: 10001, code: types.MoreThan1000FewerThan10000},
		{name: "zero amount", serverKey: []byte("k"), srvName: "node", amount: 0, code: types.MoreThan1000FewerThan10000},
		{name: "foreign mint", serverKey: []byte("k"), srvName: "node", amount: 1000, mint: &pda.Address{1}, code: types.InvalidMint},
		{name: "missing mint", serverKey: []byte("k"), srvName: "node", amount: 1000, mint: &pda.Address{}, code: types.InvalidMint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := env.funded(t, 20000)
			inv := env.inv(owner)
			if tt.mint != nil {
				inv.Mint = *tt.mint
			}
			err := env.svc.AddServer(ctx, inv, tt.serverKey, tt.srvName, tt.amount)
			assertCode(t, err, tt.code)
			assert.Equal(t, 20000*unit, env.balance(t, owner.Address()))
		})
	}

	t.Run("boundaries", func(t *testing.T) {
		for _, amount := range []uint64{1000, 10000} {
			owner := env.funded(t, amount)
			key := []byte(fmt.Sprintf("boundary-%d", amount))
			require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, "node", amount))
			assert.Equal(t, amount*unit, env.server(t, owner, key).Stake)
			assert.Zero(t, env.balance(t, owner.Address()))
		}
	})

	t.Run("limits are inclusive for name and key", func(t *testing.T) {
		owner := env.funded(t, 1000)
		key := make([]byte, 65)
		key[0] = 7
		name := "abcdefghijklmnopqrstuvwxyz012345"
		require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, name, 1000))
		assert.Equal(t, name, env.server(t, owner, key).Name)
	})

	env.requireConsistent(t)
}

func TestAddServer(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	key := []byte("server-key-1")

	alice := env.funded(t, 15000)
	require.NoError(t, env.svc.AddServer(ctx, env.inv(alice), key, "alice-node", 1500))

	server := env.server(t, alice, key)
	assert.Equal(t, alice.Address().String(), server.Owner)
	assert.Equal(t, "alice-node", server.Name)
	assert.Equal(t, key, server.ServerKey)
	assert.Equal(t, 1500*unit, server.Stake)
	assert.Equal(t, 1500*unit, server.Total)
	assert.Equal(t, uint64(1), server.Incarnation)

	registry := env.registry(t)
	assert.Equal(t, 1500*unit, registry.TotalStake)
	assert.Equal(t, uint32(1), registry.TotalUsers)

	event := env.publisher.last()
	assert.Equal(t, types.EventServerAdded, event.Type)
	assert.Equal(t, server.Address, event.Server)
	assert.Equal(t, 1500*unit, event.Amount)

	t.Run("owner tops up through add_server", func(t *testing.T) {
		require.NoError(t, env.svc.AddServer(ctx, env.inv(alice), key, "renamed-ignored", 1000))
		server := env.server(t, alice, key)
		assert.Equal(t, 2500*unit, server.Stake)
		assert.Equal(t, "alice-node", server.Name)
		assert.Equal(t, uint32(1), env.registry(t).TotalUsers)
	})

	t.Run("top up above maximum", func(t *testing.T) {
		err := env.svc.AddServer(ctx, env.inv(alice), key, "alice-node", 8000)
		assertCode(t, err, types.ExceedsMaxStakeLimit)
		assert.Equal(t, 2500*unit, env.server(t, alice, key).Stake)
	})

	t.Run("another owner cannot claim the server key", func(t *testing.T) {
		mallory := env.funded(t, 5000)
		before := env.server(t, alice, key)

		err := env.svc.AddServer(ctx, env.inv(mallory), key, "mallory-node", 1000)
		assertCode(t, err, types.InfoAlreadyInitialized)

		after := env.server(t, alice, key)
		assert.Equal(t, before, after)
		assert.Equal(t, 5000*unit, env.balance(t, mallory.Address()))
		_, err = env.svc.GetServer(ctx, env.serverAddress(t, mallory, key))
		assertCode(t, err, types.StakeAccountNotFound)
	})

	t.Run("same key different owners derive different records", func(t *testing.T) {
		assert.NotEqual(t, env.serverAddress(t, alice, key), env.serverAddress(t, newWallet(t), key))
	})

	t.Run("failed transfer leaves no record", func(t *testing.T) {
		poor := env.funded(t, 999)
		users := env.registry(t).TotalUsers

		err := env.svc.AddServer(ctx, env.inv(poor), []byte("poor"), "poor", 1000)
		assertCode(t, err, types.InsufficientTokenBalance)

		_, err = env.svc.GetServer(ctx, env.serverAddress(t, poor, []byte("poor")))
		assertCode(t, err, types.StakeAccountNotFound)
		assert.Equal(t, users, env.registry(t).TotalUsers)
		assert.Equal(t, 999*unit, env.balance(t, poor.Address()))
	})

	t.Run("caller without token account", func(t *testing.T) {
		err := env.svc.AddServer(ctx, env.inv(newWallet(t)), []byte("nobody"), "nobody", 1000)
		assertCode(t, err, types.InsufficientTokenBalance)
	})

	env.requireConsistent(t)
}

func TestUpdateServer(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	key := []byte("key")
	alice := env.funded(t, 1000)
	require.NoError(t, env.svc.AddServer(ctx, env.inv(alice), key, "old", 1000))

	t.Run("rename", func(t *testing.T) {
		require.NoError(t, env.svc.UpdateServer(ctx, env.inv(alice), key, "new"))
		assert.Equal(t, "new", env.server(t, alice, key).Name)

		event := env.publisher.last()
		assert.Equal(t, types.EventServerUpdated, event.Type)
		assert.Equal(t, 1000*unit, event.Stake)
		assert.Equal(t, "6b6579", event.ServerKey)
	})
	t.Run("name too long", func(t *testing.T) {
		err := env.svc.UpdateServer(ctx, env.inv(alice), key, string(make([]byte, 33)))
		assertCode(t, err, types.NameTooLong)
	})
	t.Run("other caller cannot reach the record", func(t *testing.T) {
		err := env.svc.UpdateServer(ctx, env.inv(newWallet(t)), key, "hijack")
		assertCode(t, err, types.StakeAccountNotFound)
		assert.Equal(t, "new", env.server(t, alice, key).Name)
	})
	t.Run("unknown server", func(t *testing.T) {
		err := env.svc.UpdateServer(ctx, env.inv(alice), []byte("other"), "x")
		assertCode(t, err, types.StakeAccountNotFound)
	})
}

func TestDepositAndWithdraw(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	key := []byte("key")
	alice := env.funded(t, 20000)
	require.NoError(t, env.svc.AddServer(ctx, env.inv(alice), key, "node", 1000))

	t.Run("deposit", func(t *testing.T) {
		require.NoError(t, env.svc.Deposit(ctx, env.inv(alice), key, 500))
		server := env.server(t, alice, key)
		assert.Equal(t, 1500*unit, server.Stake)
		assert.Equal(t, 1500*unit, env.registry(t).TotalStake)

		event := env.publisher.last()
		assert.Equal(t, types.EventTokenDeposited, event.Type)
		assert.Equal(t, 1500*unit, event.Stake)
		assert.Equal(t, 500*unit, event.Amount)
	})
	t.Run("deposit above maximum", func(t *testing.T) {
		err := env.svc.Deposit(ctx, env.inv(alice), key, 8501)
		assertCode(t, err, types.ExceedsMaxStakeLimit)
	})
	t.Run("deposit up to maximum", func(t *testing.T) {
		require.NoError(t, env.svc.Deposit(ctx, env.inv(alice), key, 8500))
		assert.Equal(t, types.MaximumStake, env.server(t, alice, key).Stake)
		require.NoError(t, env.svc.Withdraw(ctx, env.inv(alice), key, 8500))
	})
	t.Run("deposit overflow", func(t *testing.T) {
		err := env.svc.Deposit(ctx, env.inv(alice), key, ^uint64(0)/2)
		assertCode(t, err, types.NumberOverflow)
	})
	t.Run("deposit to unknown server", func(t *testing.T) {
		err := env.svc.Deposit(ctx, env.inv(alice), []byte("missing"), 1000)
		assertCode(t, err, types.StakeAccountNotFound)
	})
	t.Run("withdraw more than stake", func(t *testing.T) {
		err := env.svc.Withdraw(ctx, env.inv(alice), key, 1501)
		assertCode(t, err, types.InsufficientFunds)
	})
	t.Run("withdraw below minimum", func(t *testing.T) {
		err := env.svc.Withdraw(ctx, env.inv(alice), key, 501)
		assertCode(t, err, types.MoreThan1000FewerThan10000)
	})
	t.Run("withdraw overflow", func(t *testing.T) {
		err := env.svc.Withdraw(ctx, env.inv(alice), key, ^uint64(0))
		assertCode(t, err, types.NumberOverflow)
	})
	t.Run("withdraw", func(t *testing.T) {
		before := env.balance(t, alice.Address())
		require.NoError(t, env.svc.Withdraw(ctx, env.inv(alice), key, 500))
		assert.Equal(t, before+500*unit, env.balance(t, alice.Address()))
		assert.Equal(t, 1000*unit, env.server(t, alice, key).Stake)

		event := env.publisher.last()
		assert.Equal(t, types.EventTokenWithdrawn, event.Type)
		assert.Equal(t, 1000*unit, event.Stake)
	})
	t.Run("refunding an emptied server respects the minimum", func(t *testing.T) {
		require.NoError(t, env.svc.Withdraw(ctx, env.inv(alice), key, 1000))
		err := env.svc.Deposit(ctx, env.inv(alice), key, 999)
		assertCode(t, err, types.MoreThan1000FewerThan10000)
		require.NoError(t, env.svc.Deposit(ctx, env.inv(alice), key, 1000))
	})
	t.Run("zero amounts are accepted", func(t *testing.T) {
		require.NoError(t, env.svc.Deposit(ctx, env.inv(alice), key, 0))
		require.NoError(t, env.svc.Withdraw(ctx, env.inv(alice), key, 0))
	})
	t.Run("withdraw returns funds to the owner", func(t *testing.T) {
		bob := env.funded(t, 1000)
		require.NoError(t, env.svc.AddServer(ctx, env.inv(bob), []byte("bob"), "bob", 1000))
		require.NoError(t, env.svc.Withdraw(ctx, env.inv(bob), []byte("bob"), 1000))
		assert.Equal(t, 1000*unit, env.balance(t, bob.Address()))
	})

	env.requireConsistent(t)
}

func TestDelegations(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	key := []byte("key")
	owner := env.funded(t, 1000)
	require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, "node", 1000))
	server := env.serverAddress(t, owner, key)

	delegator := env.funded(t, 20000)

	t.Run("below delegate minimum", func(t *testing.T) {
		err := env.svc.DelegatedDeposit(ctx, env.inv(delegator), server, 499)
		assertCode(t, err, types.DelegateExceedsMaxStakeLimit)
		address, err := env.svc.DelegationAddress(delegator.Address(), server)
		require.NoError(t, err)
		_, err = env.svc.GetDelegation(ctx, address)
		assertCode(t, err, types.StakeAccountNotFound)
		assert.Equal(t, uint32(1), env.registry(t).TotalUsers)
	})

	t.Run("exactly delegate minimum", func(t *testing.T) {
		require.NoError(t, env.svc.DelegatedDeposit(ctx, env.inv(delegator), server, 500))

		d := env.delegation(t, delegator, server)
		assert.Equal(t, delegator.Address().String(), d.Owner)
		assert.Equal(t, server.String(), d.Server)
		assert.Equal(t, 500*unit, d.Stake)

		srv := env.server(t, owner, key)
		assert.Equal(t, 1500*unit, srv.Total)
		assert.Equal(t, 1000*unit, srv.Stake)
		assert.Equal(t, uint32(1), srv.TotalDelegators)

		registry := env.registry(t)
		assert.Equal(t, uint32(2), registry.TotalUsers)
		assert.Equal(t, 1500*unit, registry.TotalStake)

		event := env.publisher.last()
		assert.Equal(t, types.EventTokenDelegatedDeposited, event.Type)
		assert.Equal(t, delegator.Address().String(), event.Owner)
		assert.Equal(t, server.String(), event.Server)
		assert.Equal(t, owner.Address().String(), event.ServerOwner)
		assert.Equal(t, 500*unit, event.Stake)
		assert.Equal(t, 1500*unit, event.Total)
	})

	t.Run("another delegator gets its own record", func(t *testing.T) {
		other := env.funded(t, 500)
		require.NoError(t, env.svc.DelegatedDeposit(ctx, env.inv(other), server, 500))

		d := env.delegation(t, other, server)
		assert.Equal(t, other.Address().String(), d.Owner)
		assert.NotEqual(t, env.delegation(t, delegator, server).Address, d.Address)
		assert.Equal(t, 500*unit, env.delegation(t, delegator, server).Stake)

		require.NoError(t, env.svc.DelegatedWithdraw(ctx, env.inv(other), server, 500))
		require.NoError(t, env.svc.RemoveDelegation(ctx, env.inv(other), server))
		assert.Equal(t, uint32(1), env.server(t, owner, key).TotalDelegators)
		assert.Equal(t, uint32(2), env.registry(t).TotalUsers)
	})

	t.Run("vault is separate from the server vault", func(t *testing.T) {
		d := env.delegation(t, delegator, server)
		assert.Equal(t, 500*unit, env.balance(t, pda.MustParseAddress(d.Address)))
		assert.Equal(t, 1000*unit, env.balance(t, server))
		assert.NotEqual(t, env.server(t, owner, key).Vault, d.Vault)
	})

	t.Run("second deposit does not add a user", func(t *testing.T) {
		require.NoError(t, env.svc.DelegatedDeposit(ctx, env.inv(delegator), server, 500))
		assert.Equal(t, uint32(2), env.registry(t).TotalUsers)
		assert.Equal(t, uint32(1), env.server(t, owner, key).TotalDelegators)
	})

	t.Run("delegation above maximum", func(t *testing.T) {
		err := env.svc.DelegatedDeposit(ctx, env.inv(delegator), server, 9001)
		assertCode(t, err, types.DelegateExceedsMaxStakeLimit)
	})

	t.Run("unknown server", func(t *testing.T) {
		err := env.svc.DelegatedDeposit(ctx, env.inv(delegator), pda.Address{9}, 500)
		assertCode(t, err, types.StakeAccountNotFound)
	})

	t.Run("withdraw more than delegated", func(t *testing.T) {
		err := env.svc.DelegatedWithdraw(ctx, env.inv(delegator), server, 1001)
		assertCode(t, err, types.InsufficientFunds)
	})

	t.Run("withdraw below delegate minimum", func(t *testing.T) {
		err := env.svc.DelegatedWithdraw(ctx, env.inv(delegator), server, 501)
		assertCode(t, err, types.DelegateExceedsMaxStakeLimit)
	})

	t.Run("other caller has no delegation", func(t *testing.T) {
		err := env.svc.DelegatedWithdraw(ctx, env.inv(newWallet(t)), server, 500)
		assertCode(t, err, types.StakeAccountNotFound)
		err = env.svc.RemoveDelegation(ctx, env.inv(newWallet(t)), server)
		assertCode(t, err, types.StakeAccountNotFound)
	})

	t.Run("remove while funded", func(t *testing.T) {
		err := env.svc.RemoveDelegation(ctx, env.inv(delegator), server)
		assertCode(t, err, types.NonZeroBalance)
	})

	t.Run("withdraw and remove", func(t *testing.T) {
		before := env.balance(t, delegator.Address())
		require.NoError(t, env.svc.DelegatedWithdraw(ctx, env.inv(delegator), server, 1000))
		assert.Equal(t, before+1000*unit, env.balance(t, delegator.Address()))

		event := env.publisher.last()
		assert.Equal(t, types.EventDelegatedTokenWithdrawn, event.Type)
		assert.Zero(t, event.Stake)
		assert.Equal(t, 1000*unit, event.Total)

		require.NoError(t, env.svc.RemoveDelegation(ctx, env.inv(delegator), server))
		assert.Equal(t, types.EventDelegatedRemoved, env.publisher.last().Type)
		assert.Equal(t, uint32(1), env.registry(t).TotalUsers)
		assert.Zero(t, env.server(t, owner, key).TotalDelegators)

		address, err := env.svc.DelegationAddress(delegator.Address(), server)
		require.NoError(t, err)
		_, err = env.svc.GetDelegation(ctx, address)
		assertCode(t, err, types.StakeAccountNotFound)
		_, err = env.svc.Tokens().Account(ctx, pda.MustParseAddress(env.server(t, owner, key).Vault))
		require.NoError(t, err)
	})

	env.requireConsistent(t)
}

// own withdraw is capped by the owner stake, not by the record total
func TestScenarioOwnerWithdrawCappedByStake(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	key := []byte("S")
	owner := env.funded(t, 1500)
	delegator := env.funded(t, 500)

	require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, "S", 1000))
	require.NoError(t, env.svc.Deposit(ctx, env.inv(owner), key, 500))
	server := env.serverAddress(t, owner, key)
	require.NoError(t, env.svc.DelegatedDeposit(ctx, env.inv(delegator), server, 500))

	srv := env.server(t, owner, key)
	require.Equal(t, 1500*unit, srv.Stake)
	require.Equal(t, 2000*unit, srv.Total)

	err := env.svc.Withdraw(ctx, env.inv(owner), key, 2000)
	assertCode(t, err, types.InsufficientFunds)

	require.NoError(t, env.svc.Withdraw(ctx, env.inv(owner), key, 1500))
	srv = env.server(t, owner, key)
	assert.Zero(t, srv.Stake)
	assert.Equal(t, 500*unit, srv.Total)

	env.requireConsistent(t)
}

func TestScenarioRemoveServer(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	key := []byte("S")
	owner := env.funded(t, 1000)
	delegator := env.funded(t, 500)

	require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, "S", 1000))
	server := env.serverAddress(t, owner, key)
	require.NoError(t, env.svc.DelegatedDeposit(ctx, env.inv(delegator), server, 500))

	err := env.svc.RemoveServer(ctx, env.inv(owner), key)
	assertCode(t, err, types.NonZeroBalance)

	require.NoError(t, env.svc.Withdraw(ctx, env.inv(owner), key, 1000))
	err = env.svc.RemoveServer(ctx, env.inv(owner), key)
	assertCode(t, err, types.NonZeroBalance)

	require.NoError(t, env.svc.DelegatedWithdraw(ctx, env.inv(delegator), server, 500))

	users := env.registry(t).TotalUsers
	vault := pda.MustParseAddress(env.server(t, owner, key).Vault)
	require.NoError(t, env.svc.RemoveServer(ctx, env.inv(owner), key))
	assert.Equal(t, users-1, env.registry(t).TotalUsers)
	assert.Equal(t, types.EventServerRemoved, env.publisher.last().Type)

	_, err = env.svc.GetServer(ctx, server)
	assertCode(t, err, types.StakeAccountNotFound)
	_, err = env.svc.Tokens().Account(ctx, vault)
	require.Error(t, err)

	t.Run("orphaned delegation can still be removed", func(t *testing.T) {
		require.NoError(t, env.svc.RemoveDelegation(ctx, env.inv(delegator), server))
		assert.Equal(t, users-2, env.registry(t).TotalUsers)
		assert.Equal(t, server.String(), env.publisher.last().Server)
	})

	t.Run("removed server cannot be used", func(t *testing.T) {
		err := env.svc.Deposit(ctx, env.inv(owner), key, 1000)
		assertCode(t, err, types.StakeAccountNotFound)
		err = env.svc.RemoveServer(ctx, env.inv(owner), key)
		assertCode(t, err, types.StakeAccountNotFound)
	})

	env.requireConsistent(t)
}

func TestRoundTrip(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	existing := env.funded(t, 3000)
	require.NoError(t, env.svc.AddServer(ctx, env.inv(existing), []byte("existing"), "existing", 3000))

	before := env.registry(t)
	owner := env.funded(t, 2000)
	key := []byte("round-trip")

	require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, "rt", 2000))
	require.NoError(t, env.svc.Withdraw(ctx, env.inv(owner), key, 2000))
	require.NoError(t, env.svc.RemoveServer(ctx, env.inv(owner), key))

	after := env.registry(t)
	assert.Equal(t, before.TotalUsers, after.TotalUsers)
	assert.Equal(t, before.TotalStake, after.TotalStake)
	assert.Equal(t, 2000*unit, env.balance(t, owner.Address()))

	t.Run("re-registering creates a fresh record", func(t *testing.T) {
		require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, "rt-2", 1000))
		server := env.server(t, owner, key)
		assert.Equal(t, "rt-2", server.Name)
		assert.Equal(t, 1000*unit, server.Stake)
		assert.Zero(t, server.TotalDelegators)
		assert.Equal(t, uint64(3), server.Incarnation)
	})

	env.requireConsistent(t)
}

func TestServerIncarnations(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	key := []byte("S")
	owner := env.funded(t, 2000)
	delegator := env.funded(t, 1000)

	require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, "S", 1000))
	server := env.serverAddress(t, owner, key)
	require.NoError(t, env.svc.DelegatedDeposit(ctx, env.inv(delegator), server, 500))
	require.NoError(t, env.svc.DelegatedWithdraw(ctx, env.inv(delegator), server, 500))
	require.NoError(t, env.svc.Withdraw(ctx, env.inv(owner), key, 1000))
	require.NoError(t, env.svc.RemoveServer(ctx, env.inv(owner), key))

	// same owner and key derive the same address again
	require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, "S", 1000))
	assert.Equal(t, server, env.serverAddress(t, owner, key))
	srv := env.server(t, owner, key)
	assert.Zero(t, srv.TotalDelegators)
	assert.Equal(t, uint64(2), srv.Incarnation)

	// owner record and the left over delegation
	users := env.registry(t).TotalUsers
	assert.Equal(t, uint32(2), users)

	require.NoError(t, env.svc.DelegatedDeposit(ctx, env.inv(delegator), server, 500))
	assert.Equal(t, users, env.registry(t).TotalUsers)
	srv = env.server(t, owner, key)
	assert.Equal(t, uint32(1), srv.TotalDelegators)
	assert.Equal(t, srv.Incarnation, env.delegation(t, delegator, server).ServerIncarnation)

	env.requireConsistent(t)

	require.NoError(t, env.svc.DelegatedWithdraw(ctx, env.inv(delegator), server, 500))
	require.NoError(t, env.svc.RemoveDelegation(ctx, env.inv(delegator), server))
	assert.Zero(t, env.server(t, owner, key).TotalDelegators)

	env.requireConsistent(t)
}

func TestMintTokens(t *testing.T) {
	ctx := t.Context()
	env := newTestEnv(t)
	recipient := newWallet(t)

	t.Run("faucet mints", func(t *testing.T) {
		require.NoError(t, env.svc.MintTokens(ctx, env.faucet, 0, recipient.Address(), 25))
		assert.Equal(t, 25*unit, env.balance(t, recipient.Address()))
	})
	t.Run("only the mint authority", func(t *testing.T) {
		err := env.svc.MintTokens(ctx, recipient, 0, recipient.Address(), 25)
		assertCode(t, err, types.Unauthorized)
	})
	t.Run("missing recipient", func(t *testing.T) {
		err := env.svc.MintTokens(ctx, env.faucet, 0, pda.Address{}, 25)
		assertCode(t, err, types.BadRequest)
	})
}

func TestConcurrentDelegations(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	key := []byte("busy")
	owner := env.funded(t, 1000)
	require.NoError(t, env.svc.AddServer(ctx, env.inv(owner), key, "busy", 1000))
	server := env.serverAddress(t, owner, key)

	const workers = 8
	delegators := make([]pda.Wallet, workers)
	for i := range delegators {
		delegators[i] = env.funded(t, 500)
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i, d := range delegators {
		wg.Add(1)
		go func(i int, d pda.Wallet) {
			defer wg.Done()
			errs[i] = env.svc.DelegatedDeposit(ctx, env.inv(d), server, 500)
		}(i, d)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	srv := env.server(t, owner, key)
	assert.Equal(t, uint32(workers), srv.TotalDelegators)
	assert.Equal(t, (1000+workers*500)*unit, srv.Total)
	assert.Equal(t, uint32(workers+1), env.registry(t).TotalUsers)

	env.requireConsistent(t)
}

func TestInvocationNonce(t *testing.T) {
	ctx := t.Context()
	env := newInitializedEnv(t)
	key := []byte("signed")
	alice := env.funded(t, 5000)
	require.NoError(t, env.svc.AddServer(ctx, env.inv(alice), key, "node", 1000))

	signed := func(nonce uint64) Invocation {
		inv := env.inv(alice)
		inv.Nonce = nonce
		return inv
	}

	t.Run("first nonce is recorded", func(t *testing.T) {
		require.NoError(t, env.svc.Deposit(ctx, signed(10), key, 100))
		last, err := env.store.GetSignerNonce(ctx, alice.Address().String())
		require.NoError(t, err)
		assert.Equal(t, uint64(10), last.Nonce)
	})
	t.Run("reused nonce", func(t *testing.T) {
		err := env.svc.Deposit(ctx, signed(10), key, 100)
		assertCode(t, err, types.Unauthenticated)
		assert.Equal(t, 1100*unit, env.server(t, alice, key).Stake)
	})
	t.Run("lower nonce", func(t *testing.T) {
		err := env.svc.Withdraw(ctx, signed(9), key, 100)
		assertCode(t, err, types.Unauthenticated)
	})
	t.Run("rejected operation keeps the nonce unused", func(t *testing.T) {
		err := env.svc.Withdraw(ctx, signed(11), key, 5000)
		assertCode(t, err, types.InsufficientFunds)

		last, err := env.store.GetSignerNonce(ctx, alice.Address().String())
		require.NoError(t, err)
		assert.Equal(t, uint64(10), last.Nonce)
	})
	t.Run("nonces are per signer", func(t *testing.T) {
		bob := env.funded(t, 10)
		inv := env.inv(bob)
		inv.Nonce = 1
		err := env.svc.Deposit(ctx, inv, []byte("missing"), 1)
		assertCode(t, err, types.StakeAccountNotFound)
	})
	t.Run("faucet nonce", func(t *testing.T) {
		require.NoError(t, env.svc.MintTokens(ctx, env.faucet, 7, alice.Address(), 1))
		err := env.svc.MintTokens(ctx, env.faucet, 7, alice.Address(), 1)
		assertCode(t, err, types.Unauthenticated)
	})
	t.Run("zero nonce skips the check", func(t *testing.T) {
		require.NoError(t, env.svc.Deposit(ctx, env.inv(alice), key, 1))
		require.NoError(t, env.svc.Deposit(ctx, env.inv(alice), key, 1))
	})

	env.requireConsistent(t)
}
