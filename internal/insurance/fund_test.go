package insurance

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "trustline/pkg/domain-errors"
)

// coverage cap 25 bps (0.25% of principal), allocation 1000 bps (10%).
func newTestFund() *Fund {
	return New(25, 1_000)
}

func TestDeposit(t *testing.T) {
	f := newTestFund()
	ctx := context.Background()

	err := f.Deposit(ctx, 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	require.NoError(t, f.Deposit(ctx, 500))
	assert.Equal(t, int64(500), f.Snapshot(ctx).Balance)
}

func TestAllocateRevenue(t *testing.T) {
	f := newTestFund()
	ctx := context.Background()

	allocation, err := f.AllocateRevenue(ctx, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), allocation, "10% of revenue")

	snap := f.Snapshot(ctx)
	assert.Equal(t, int64(1_000), snap.Balance)
	assert.Equal(t, int64(1_000), snap.TotalAllocated)

	_, err = f.AllocateRevenue(ctx, -1)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCoverLossCapsAtPrincipalShare(t *testing.T) {
	f := newTestFund()
	ctx := context.Background()
	require.NoError(t, f.Deposit(ctx, 300))

	// cap = 100_000 * 25bps = 250; loss 5_000; balance 300 → covered 250.
	covered, err := f.CoverLoss(ctx, 100_000, 5_000)
	require.NoError(t, err)
	assert.Equal(t, int64(250), covered)

	snap := f.Snapshot(ctx)
	assert.Equal(t, int64(50), snap.Balance)
	assert.Equal(t, int64(250), snap.TotalCovered)
}

func TestCoverLossCapsAtBalance(t *testing.T) {
	f := newTestFund()
	ctx := context.Background()
	require.NoError(t, f.Deposit(ctx, 100))

	covered, err := f.CoverLoss(ctx, 100_000, 5_000)
	require.NoError(t, err)
	assert.Equal(t, int64(100), covered, "never covers more than the balance")
	assert.Equal(t, int64(0), f.Snapshot(ctx).Balance)
}

func TestCoverLossCapsAtLoss(t *testing.T) {
	f := newTestFund()
	ctx := context.Background()
	require.NoError(t, f.Deposit(ctx, 10_000))

	covered, err := f.CoverLoss(ctx, 100_000, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), covered, "small losses are covered in full")
}

func TestCoverLossDrainedFundIsZeroNotError(t *testing.T) {
	f := newTestFund()

	covered, err := f.CoverLoss(context.Background(), 100_000, 5_000)
	require.NoError(t, err, "a drained fund degrades, it does not fail")
	assert.Equal(t, int64(0), covered)
}

func TestCoverLossConcurrentNeverOverdraws(t *testing.T) {
	f := newTestFund()
	ctx := context.Background()
	require.NoError(t, f.Deposit(ctx, 1_000))

	const workers = 50
	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			covered, err := f.CoverLoss(ctx, 100_000, 250)
			assert.NoError(t, err)
			results[i] = covered
		}(i)
	}
	wg.Wait()

	var total int64
	for _, covered := range results {
		total += covered
	}
	snap := f.Snapshot(ctx)
	assert.Equal(t, int64(1_000), total, "coverage never exceeds deposits")
	assert.Equal(t, int64(0), snap.Balance)
	assert.Equal(t, total, snap.TotalCovered)
}
