package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "trustline/pkg/domain-errors"
)

func newTestService() *Service {
	return New(NewMemoryStore())
}

func registerTestLoan(t *testing.T, s *Service, subject Subject) uuid.UUID {
	t.Helper()
	id, err := s.RegisterLoan(context.Background(), subject, 100_000, 10, "ETH", 200_000, 5_000, 1_000)
	require.NoError(t, err)
	return id
}

func assertInvariant(t *testing.T, s *Service, subject Subject) {
	t.Helper()
	agg, err := s.GetAggregate(context.Background(), subject)
	require.NoError(t, err)
	assert.Equal(t, agg.TotalLoans, agg.RepaidLoans+agg.LiquidatedLoans+agg.ActiveLoans,
		"total = repaid + liquidated + active must hold")
}

func TestRegisterLoanValidation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	tests := []struct {
		name       string
		subject    Subject
		principal  int64
		collAmount int64
		collValue  int64
	}{
		{"empty subject", "", 100, 10, 200},
		{"zero principal", "alice", 0, 10, 200},
		{"negative principal", "alice", -5, 10, 200},
		{"zero collateral value", "alice", 100, 10, 0},
		{"zero collateral amount", "alice", 100, 0, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RegisterLoan(ctx, tt.subject, tt.principal, tt.collAmount, "ETH", tt.collValue, 5_000, 1_000)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func TestRegisterLoanCounters(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	registerTestLoan(t, s, "alice")
	registerTestLoan(t, s, "alice")

	agg, err := s.GetAggregate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), agg.TotalLoans)
	assert.Equal(t, uint64(2), agg.ActiveLoans)
	assert.False(t, agg.FirstSeen.IsZero())
	assertInvariant(t, s, "alice")
}

func TestPartialThenFullRepayment(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	id := registerTestLoan(t, s, "alice")

	loan, err := s.RegisterRepayment(ctx, id, 40_000, time.Now())
	require.NoError(t, err)
	assert.Equal(t, LoanActive, loan.Status)
	assert.Equal(t, int64(40_000), loan.RepaidAmount)
	assertInvariant(t, s, "alice")

	loan, err = s.RegisterRepayment(ctx, id, 60_000, time.Now())
	require.NoError(t, err)
	assert.Equal(t, LoanRepaid, loan.Status)
	require.NotNil(t, loan.ClosedAt)

	agg, err := s.GetAggregate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), agg.RepaidLoans)
	assert.Equal(t, uint64(0), agg.ActiveLoans)
	assertInvariant(t, s, "alice")
}

func TestTerminalLoanRejectsFurtherTransitions(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	id := registerTestLoan(t, s, "alice")

	_, err := s.RegisterRepayment(ctx, id, 100_000, time.Now())
	require.NoError(t, err)

	_, err = s.RegisterRepayment(ctx, id, 1, time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeState), "repay after terminal: %v", err)

	_, err = s.RegisterLiquidation(ctx, id)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeState), "liquidate after terminal: %v", err)

	assertInvariant(t, s, "alice")
}

func TestRepaymentLiquidationRace(t *testing.T) {
	// Whichever transition commits first wins; the loser must observe a
	// state error and the aggregate must count exactly one terminal loan.
	s := newTestService()
	ctx := context.Background()
	id := registerTestLoan(t, s, "alice")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = s.RegisterRepayment(ctx, id, 100_000, time.Now())
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = s.RegisterLiquidation(ctx, id)
	}()
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, dErrors.HasCode(err, dErrors.CodeState), "loser error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one transition commits")

	agg, err := s.GetAggregate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), agg.RepaidLoans+agg.LiquidatedLoans)
	assert.Equal(t, uint64(0), agg.ActiveLoans)
	assertInvariant(t, s, "alice")
}

func TestConcurrentRepaymentsCannotOverpay(t *testing.T) {
	// Two repayments that individually fit the debt but together exceed it
	// race on the same snapshot. The check runs under the loan's lock, so
	// exactly one commits and the loser gets a validation error.
	s := newTestService()
	ctx := context.Background()
	id := registerTestLoan(t, s, "alice")
	now := time.Now()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	for i := range errs {
		go func() {
			defer wg.Done()
			_, errs[i] = s.RegisterRepayment(ctx, id, 60_000, now)
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "loser error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one repayment commits")

	loan, err := s.GetLoan(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, LoanActive, loan.Status)
	assert.Equal(t, int64(60_000), loan.RepaidAmount)
	assertInvariant(t, s, "alice")
}

func TestRecordCollateralUse(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	id := registerTestLoan(t, s, "alice") // ltvAtOpen 5_000

	// Tier max 5_000: opening at exactly the ceiling counts as a max-LTV borrow.
	require.NoError(t, s.RecordCollateralUse(ctx, id, 5_000))

	agg, err := s.GetAggregate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), agg.TotalCollateralValue)
	assert.Equal(t, int64(100_000), agg.TotalBorrowedValue)
	assert.Equal(t, uint64(1), agg.MaxLtvBorrowCount)
	assert.Equal(t, uint64(1), agg.CollateralAssets["ETH"])

	// A second loan well under the ceiling does not bump the max-LTV count.
	id2, err := s.RegisterLoan(ctx, "alice", 50_000, 10, "BTC", 200_000, 2_500, 1_000)
	require.NoError(t, err)
	require.NoError(t, s.RecordCollateralUse(ctx, id2, 5_000))

	agg, err = s.GetAggregate(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), agg.MaxLtvBorrowCount)
	assert.Len(t, agg.CollateralAssets, 2)
}

func TestStakeUnstake(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	require.NoError(t, s.Stake(ctx, "bob", 1_000))
	require.NoError(t, s.Stake(ctx, "bob", 500))

	agg, err := s.GetAggregate(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1_500), agg.Stake.Amount)
	assert.False(t, agg.Stake.Since.IsZero())
	assert.False(t, agg.FirstSeen.IsZero(), "stake counts as first contact")

	err = s.Unstake(ctx, "bob", 2_000)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "overdraw: %v", err)

	require.NoError(t, s.Unstake(ctx, "bob", 1_500))
	agg, err = s.GetAggregate(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.Stake.Amount)
	assert.True(t, agg.Stake.Since.IsZero(), "stake clock resets at zero")
}

func TestSubmitKYCProof(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	err := s.SubmitKYCProof(ctx, "carol", "", time.Now().Add(time.Hour))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = s.SubmitKYCProof(ctx, "carol", "0xproof", time.Now().Add(-time.Hour))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "expired proof rejected")

	expires := time.Now().Add(24 * time.Hour)
	require.NoError(t, s.SubmitKYCProof(ctx, "carol", "0xproof", expires))

	agg, err := s.GetAggregate(ctx, "carol")
	require.NoError(t, err)
	assert.True(t, agg.KYC.Verified)
	assert.Equal(t, "0xproof", agg.KYC.ProofHash)
}

func TestGovernanceActivity(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	require.NoError(t, s.RecordVote(ctx, "dave"))
	require.NoError(t, s.RecordVote(ctx, "dave"))
	require.NoError(t, s.RecordProposal(ctx, "dave"))

	agg, err := s.GetAggregate(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), agg.Governance.VoteCount)
	assert.Equal(t, uint64(1), agg.Governance.ProposalCount)
	assert.False(t, agg.Governance.LastActivityAt.IsZero())
}

func TestRecordCrossSourceScore(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	err := s.RecordCrossSourceScore(ctx, "erin", "", 50)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	err = s.RecordCrossSourceScore(ctx, "erin", "lenderdao", 120)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	require.NoError(t, s.RecordCrossSourceScore(ctx, "erin", "lenderdao", 80))
	require.NoError(t, s.RecordCrossSourceScore(ctx, "erin", "lenderdao", 60))
	require.NoError(t, s.RecordCrossSourceScore(ctx, "erin", "chainrep", 90))

	agg, err := s.GetAggregate(ctx, "erin")
	require.NoError(t, err)
	assert.Len(t, agg.CrossSourceScores, 2, "same source replaces, not appends")
	assert.Equal(t, float64(60), agg.CrossSourceScores["lenderdao"])
}

func TestGetAggregateUnknownSubject(t *testing.T) {
	s := newTestService()

	agg, err := s.GetAggregate(context.Background(), "nobody")
	require.NoError(t, err, "unseen subjects are not an error")
	assert.Equal(t, uint64(0), agg.TotalLoans)
	assert.NotNil(t, agg.CollateralAssets)
}

func TestGetLoanNotFound(t *testing.T) {
	s := newTestService()

	_, err := s.GetLoan(context.Background(), uuid.New())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
