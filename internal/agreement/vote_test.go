package agreement

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/agreements/internal/ir"
	"github.com/roach88/agreements/internal/pool"
)

func TestVote_SingleVoteWaits(t *testing.T) {
	f := setupTestService(t)
	f.open(t, 10, "@AgreementEngine @bob agreement")

	res, err := f.svc.Vote(context.Background(), 10, f.alice, ir.RulingUpheld)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeOK, res.Outcome)
	assert.Equal(t, ir.ConsensusWaiting, res.Consensus)
	assert.Nil(t, res.Settlement)
	assert.Equal(t, ir.AgreementOpen, res.Agreement.State)
}

func TestVote_DisputeThenConsensus(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.open(t, 10, "@AgreementEngine @bob agreement")

	_, err := f.svc.Vote(ctx, 10, f.alice, ir.RulingUpheld)
	require.NoError(t, err)
	res, err := f.svc.Vote(ctx, 10, f.bob, ir.RulingBroken)
	require.NoError(t, err)
	assert.Equal(t, ir.ConsensusDisputed, res.Consensus)
	assert.Equal(t, ir.ConsensusWaiting, res.Previous)
	assert.Equal(t, ir.AgreementOpen, res.Agreement.State)

	// Repeating a ruling leaves the dispute in place
	res, err = f.svc.Vote(ctx, 10, f.bob, ir.RulingBroken)
	require.NoError(t, err)
	assert.Equal(t, ir.ConsensusDisputed, res.Previous)
	assert.Equal(t, ir.ConsensusDisputed, res.Consensus)

	// The creator changes their ruling
	res, err = f.svc.Vote(ctx, 10, f.alice, ir.RulingBroken)
	require.NoError(t, err)
	assert.Equal(t, ir.ConsensusBroken, res.Consensus)
	assert.Equal(t, ir.AgreementClosed, res.Agreement.State)
	require.NotNil(t, res.Settlement)
}

func TestVote_UnauthorizedAndNotFound(t *testing.T) {
	f := setupTestService(t)
	f.open(t, 10, "@AgreementEngine @bob agreement")

	res, err := f.svc.Vote(context.Background(), 10, f.carol, ir.RulingUpheld)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeUnauthorizedVoter, res.Outcome)

	res, err = f.svc.Vote(context.Background(), 99, f.alice, ir.RulingUpheld)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeNotFound, res.Outcome)
}

func TestVote_CurrencySettlement(t *testing.T) {
	tests := []struct {
		ruling        ir.Ruling
		aliceBalance  int64
		bobBalance    int64
		settledAmount int64
	}{
		{ir.RulingUpheld, 80, 0, 50},
		{ir.RulingBroken, 30, 50, 50},
	}

	for _, tt := range tests {
		t.Run(string(tt.ruling), func(t *testing.T) {
			f := setupTestService(t)
			ctx := context.Background()
			f.fund(t, f.alice.ID, 80)
			f.open(t, 10, "@AgreementEngine @bob agreement 50")

			_, err := f.svc.Vote(ctx, 10, f.bob, tt.ruling)
			require.NoError(t, err)
			res, err := f.svc.Vote(ctx, 10, f.alice, tt.ruling)
			require.NoError(t, err)

			require.NotNil(t, res.Settlement)
			assert.Equal(t, tt.settledAmount, res.Settlement.Amount)
			assert.Equal(t, tt.aliceBalance, f.balance(t, f.alice.ID))
			assert.Equal(t, tt.bobBalance, f.balance(t, f.bob.ID))
		})
	}
}

func TestVote_ContractCollateralBroken(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.open(t, 10, "@AgreementEngine @bob agreement 4 likes")

	_, err := f.svc.Vote(ctx, 10, f.alice, ir.RulingBroken)
	require.NoError(t, err)
	res, err := f.svc.Vote(ctx, 10, f.bob, ir.RulingBroken)
	require.NoError(t, err)

	// 4 likes at 1 per follower, 10 followers: value 40, tax 4
	require.NotNil(t, res.Settlement)
	assert.Equal(t, int64(36), res.Settlement.Amount)
	assert.Equal(t, int64(4), res.Settlement.EngineShare)
	assert.Equal(t, int64(36), f.balance(t, f.bob.ID))
	assert.Equal(t, int64(4), f.balance(t, 1))
	assert.Equal(t, int64(0), f.balance(t, f.alice.ID))

	c, err := f.store.GetContract(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ir.ContractAlive, c.State)

	alice, err := f.ledger.Account(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, alice.Contracts)
}

func TestVote_ContractCollateralUpheld(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.open(t, 10, "@AgreementEngine @bob agreement 4 likes")

	_, err := f.svc.Vote(ctx, 10, f.alice, ir.RulingUpheld)
	require.NoError(t, err)
	res, err := f.svc.Vote(ctx, 10, f.bob, ir.RulingUpheld)
	require.NoError(t, err)
	require.NotNil(t, res.Settlement)

	c, err := f.store.GetContract(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ir.ContractDead, c.State)
	assert.Equal(t, int64(0), c.Count)
	assert.Equal(t, int64(0), f.balance(t, f.bob.ID))
}

func TestVote_UpheldContractFreesCapacity(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	// alice has 10 followers and the retweet limit is 20
	f.open(t, 10, "@AgreementEngine @bob agreement 20 retweets")

	res, err := f.pool.Create(ctx, pool.CreateRequest{ID: 11, Owner: f.alice, Type: ir.ContractRetweet, Size: 1})
	require.NoError(t, err)
	assert.False(t, res.Outcome.Created())

	_, err = f.svc.Vote(ctx, 10, f.alice, ir.RulingUpheld)
	require.NoError(t, err)
	_, err = f.svc.Vote(ctx, 10, f.bob, ir.RulingUpheld)
	require.NoError(t, err)

	res, err = f.pool.Create(ctx, pool.CreateRequest{ID: 12, Owner: f.alice, Type: ir.ContractRetweet, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeOK, res.Outcome)
}

func TestVote_FailedSettlementKeepsAgreementOpen(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.fund(t, f.alice.ID, 50)
	f.open(t, 10, "@AgreementEngine @bob agreement 50")

	// The member's account vanishes, so paying them out cannot succeed
	_, err := f.store.DB().ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, f.bob.ID)
	require.NoError(t, err)

	_, err = f.svc.Vote(ctx, 10, f.alice, ir.RulingBroken)
	require.NoError(t, err)
	_, err = f.svc.Vote(ctx, 10, f.bob, ir.RulingBroken)
	require.Error(t, err)

	a, err := f.store.GetAgreement(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ir.AgreementOpen, a.State)
	assert.Equal(t, int64(0), f.balance(t, f.alice.ID), "collateral stays in escrow")

	// Once the account is back the next vote settles
	_, _, err = f.ledger.EnsureAccount(ctx, f.bob)
	require.NoError(t, err)
	res, err := f.svc.Vote(ctx, 10, f.bob, ir.RulingBroken)
	require.NoError(t, err)
	require.NotNil(t, res.Settlement)
	assert.Equal(t, int64(50), f.balance(t, f.bob.ID))
}

func TestVote_ClosedAgreementIgnoresVotes(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.fund(t, f.alice.ID, 50)
	f.open(t, 10, "@AgreementEngine @bob agreement 50")

	_, err := f.svc.Vote(ctx, 10, f.alice, ir.RulingBroken)
	require.NoError(t, err)
	_, err = f.svc.Vote(ctx, 10, f.bob, ir.RulingBroken)
	require.NoError(t, err)

	res, err := f.svc.Vote(ctx, 10, f.bob, ir.RulingBroken)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeClosed, res.Outcome)
	assert.Nil(t, res.Settlement)
	assert.Equal(t, int64(50), f.balance(t, f.bob.ID))
}

func TestVote_ConcurrentFinalVotesSettleOnce(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	f.fund(t, f.alice.ID, 50)
	f.open(t, 10, "@AgreementEngine @bob agreement 50")
	_, err := f.svc.Vote(ctx, 10, f.alice, ir.RulingBroken)
	require.NoError(t, err)

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		settlements int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Vote(ctx, 10, f.bob, ir.RulingBroken)
			assert.NoError(t, err)
			if res.Settlement != nil {
				mu.Lock()
				settlements++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, settlements)
	assert.Equal(t, int64(50), f.balance(t, f.bob.ID))
}
