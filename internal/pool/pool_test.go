package pool

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/ledger"
	"github.com/roach88/agreements/internal/store"
	"github.com/roach88/agreements/internal/testutil"
)

var testConfig = Config{
	Like:    Terms{Value: 2, Limit: 50},
	Retweet: Terms{Value: 5, Limit: 20},
	TaxRate: 0.1,
}

type fixture struct {
	pool   *Pool
	ledger *ledger.Ledger
	store  *store.Store
	clock  *testutil.DeterministicClock
}

func setupTestPool(t *testing.T, cfg Config) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(s, ledger.Config{Engine: testutil.EngineUser, MinReputation: -100, MaxReputation: 100}, ledger.WithLogger(logger))
	clock := testutil.NewDeterministicClock()
	p := New(s, l, cfg, WithClock(clock), WithLogger(logger))

	_, _, err = l.EnsureAccount(context.Background(), testutil.EngineUser)
	require.NoError(t, err)

	return &fixture{pool: p, ledger: l, store: s, clock: clock}
}

func (f *fixture) user(t *testing.T, id int64, handle string, followers, balance int64) ir.User {
	t.Helper()
	u := testutil.User(id, handle, followers)
	_, _, err := f.ledger.EnsureAccount(context.Background(), u)
	require.NoError(t, err)
	if balance != 0 {
		_, err = f.ledger.ChangeBalance(context.Background(), id, balance)
		require.NoError(t, err)
	}
	return u
}

func (f *fixture) balance(t *testing.T, id int64) int64 {
	t.Helper()
	b, err := f.ledger.CheckBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestCreate_PricesAndPaysOut(t *testing.T) {
	f := setupTestPool(t, testConfig)
	ctx := context.Background()
	alice := f.user(t, 2, "alice", 100, 0)

	res, err := f.pool.Create(ctx, CreateRequest{ID: 1000, Owner: alice, Type: ir.ContractLike, Size: 5, CreatedAt: testutil.Epoch})
	require.NoError(t, err)

	assert.Equal(t, ir.OutcomeOK, res.Outcome)
	assert.Equal(t, int64(5), res.Contract.Count)
	assert.Equal(t, int64(200), res.Contract.Price)
	assert.Equal(t, int64(1000), res.TotalValue)
	assert.Equal(t, int64(100), res.EngineShare)
	assert.Equal(t, int64(900), res.OwnerShare)

	assert.Equal(t, int64(100), f.balance(t, testutil.EngineUser.ID))
	assert.Equal(t, int64(900), f.balance(t, alice.ID))

	acc, err := f.ledger.Account(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000}, acc.Contracts)

	stored, err := f.store.GetContract(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, ir.ContractAlive, stored.State)
}

func TestCreate_CapacityOutcomes(t *testing.T) {
	f := setupTestPool(t, testConfig)
	ctx := context.Background()
	alice := f.user(t, 2, "alice", 10, 0)

	res, err := f.pool.Create(ctx, CreateRequest{ID: 10, Owner: alice, Type: ir.ContractRetweet, Size: 15})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeOK, res.Outcome)

	res, err = f.pool.Create(ctx, CreateRequest{ID: 11, Owner: alice, Type: ir.ContractRetweet, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeResized, res.Outcome)
	assert.Equal(t, int64(5), res.Contract.Count)

	res, err = f.pool.Create(ctx, CreateRequest{ID: 12, Owner: alice, Type: ir.ContractRetweet, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeOversized, res.Outcome)

	// Capacity is per type
	res, err = f.pool.Create(ctx, CreateRequest{ID: 13, Owner: alice, Type: ir.ContractLike, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeOK, res.Outcome)

	_, err = f.store.GetContract(ctx, 12)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreate_NoFollowers(t *testing.T) {
	f := setupTestPool(t, testConfig)
	ctx := context.Background()
	ghost := f.user(t, 2, "ghost", 0, 0)

	res, err := f.pool.Create(ctx, CreateRequest{ID: 10, Owner: ghost, Type: ir.ContractLike, Size: 3})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeNoFollowers, res.Outcome)

	counters, err := f.store.Counters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counters.Contracts)
	assert.Equal(t, int64(0), f.balance(t, ghost.ID))
}

func TestCreate_RedeliveryPaysOnce(t *testing.T) {
	f := setupTestPool(t, testConfig)
	ctx := context.Background()
	alice := f.user(t, 2, "alice", 10, 0)

	req := CreateRequest{ID: 10, Owner: alice, Type: ir.ContractLike, Size: 2}
	_, err := f.pool.Create(ctx, req)
	require.NoError(t, err)
	before := f.balance(t, alice.ID)

	// The same message again: capacity already counts the first contract.
	res, err := f.pool.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Contract.ID)
	assert.Equal(t, before, f.balance(t, alice.ID))
}

func TestCreate_ConcurrentSameOwnerRespectsLimit(t *testing.T) {
	cfg := testConfig
	cfg.Like.Limit = 10
	f := setupTestPool(t, cfg)
	ctx := context.Background()
	alice := f.user(t, 2, "alice", 1, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.pool.Create(ctx, CreateRequest{ID: id, Owner: alice, Type: ir.ContractLike, Size: 3})
			assert.NoError(t, err)
		}(int64(100 + i))
	}
	wg.Wait()

	total, err := f.store.SumContractCounts(ctx, alice.ID, ir.ContractLike)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}

func TestCreateDormant(t *testing.T) {
	f := setupTestPool(t, testConfig)
	ctx := context.Background()
	alice := f.user(t, 2, "alice", 10, 0)

	var committed ir.Contract
	res, err := f.pool.CreateDormant(ctx, CreateRequest{ID: 50, Owner: alice, Type: ir.ContractLike, Size: 3},
		func(ctx context.Context, c ir.Contract) error {
			committed = c
			_, err := f.store.InsertContract(ctx, c)
			return err
		})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeOK, res.Outcome)
	assert.Equal(t, ir.ContractDead, committed.State)
	assert.Equal(t, int64(60), res.TotalValue)

	// No payout and not yet in the owner's list
	assert.Equal(t, int64(0), f.balance(t, alice.ID))
	acc, err := f.ledger.Account(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, acc.Contracts)

	// Dormant contracts are never called in
	stored, err := f.store.GetContract(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, ir.ContractDead, stored.State)
	assert.Equal(t, int64(3), stored.Count)
}

func TestCreateDormant_OversizedSkipsCommit(t *testing.T) {
	cfg := testConfig
	cfg.Like.Limit = 2
	f := setupTestPool(t, cfg)
	ctx := context.Background()
	alice := f.user(t, 2, "alice", 10, 0)

	_, err := f.pool.Create(ctx, CreateRequest{ID: 1, Owner: alice, Type: ir.ContractLike, Size: 2})
	require.NoError(t, err)

	called := false
	res, err := f.pool.CreateDormant(ctx, CreateRequest{ID: 2, Owner: alice, Type: ir.ContractLike, Size: 1},
		func(context.Context, ir.Contract) error {
			called = true
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeOversized, res.Outcome)
	assert.False(t, called)
}

func TestCount_SumsPledgedExecutions(t *testing.T) {
	f := setupTestPool(t, testConfig)
	ctx := context.Background()
	alice := f.user(t, 2, "alice", 10, 0)

	for id, size := range map[int64]int64{100: 4, 101: 3} {
		_, err := f.pool.Create(ctx, CreateRequest{ID: id, Owner: alice, Type: ir.ContractLike, Size: size})
		require.NoError(t, err)
	}
	_, err := f.pool.Create(ctx, CreateRequest{ID: 102, Owner: alice, Type: ir.ContractRetweet, Size: 2})
	require.NoError(t, err)

	likes, err := f.pool.Count(ctx, alice.ID, ir.ContractLike)
	require.NoError(t, err)
	assert.Equal(t, int64(7), likes)

	retweets, err := f.pool.Count(ctx, alice.ID, ir.ContractRetweet)
	require.NoError(t, err)
	assert.Equal(t, int64(2), retweets)
}
