package vault

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"trustline/internal/events"
	"trustline/internal/ledger"
	"trustline/internal/scoring"
	"trustline/internal/vault/ports/mocks"
	dErrors "trustline/pkg/domain-errors"
)

var goldTerms = scoring.TermSheet{
	Tier:        scoring.TierGold,
	MaxLtvBps:   6_500,
	AprBps:      700,
	GracePeriod: 24 * time.Hour,
}

type stubScorer struct {
	terms scoring.TermSheet
	err   error
}

func (s *stubScorer) ComputeScore(_ context.Context, subject ledger.Subject) (*scoring.Scorecard, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &scoring.Scorecard{Subject: subject, Overall: 75, Terms: s.terms}, nil
}

type capturingSink struct {
	events []events.Event
}

func (c *capturingSink) Emit(_ context.Context, event events.Event) {
	c.events = append(c.events, event)
}

type VaultServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	oracle  *mocks.MockPriceOracle
	custody *mocks.MockAssetCustody
	ledger  *ledger.Service
	sink    *capturingSink
	now     time.Time
	service *Service
}

func TestVaultServiceSuite(t *testing.T) {
	suite.Run(t, new(VaultServiceSuite))
}

func (s *VaultServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.oracle = mocks.NewMockPriceOracle(s.ctrl)
	s.custody = mocks.NewMockAssetCustody(s.ctrl)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ledger = ledger.New(ledger.NewMemoryStore(),
		ledger.WithClock(func() time.Time { return s.now }))
	s.sink = &capturingSink{}
	s.service = New(s.ledger, &stubScorer{terms: goldTerms}, s.oracle, s.custody,
		WithClock(func() time.Time { return s.now }),
		WithEventSink(s.sink),
	)
}

func (s *VaultServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *VaultServiceSuite) borrow() *BorrowResult {
	s.oracle.EXPECT().QuoteUsd(gomock.Any(), "ETH", int64(10)).Return(int64(200_000), nil)
	s.custody.EXPECT().TransferIn(gomock.Any(), ledger.Subject("alice"), "ETH", int64(10)).Return(nil)

	result, err := s.service.Borrow(context.Background(), "alice", 10, "ETH", 100_000)
	s.Require().NoError(err)
	return result
}

func (s *VaultServiceSuite) TestBorrowHappyPath() {
	result := s.borrow()

	s.Equal(int64(200_000), result.CollateralValue)
	s.Equal(uint64(5_000), result.LtvBps)
	s.Equal(scoring.TierGold, result.Terms.Tier)

	loan, err := s.ledger.GetLoan(context.Background(), result.LoanID)
	s.Require().NoError(err)
	s.Equal(ledger.LoanActive, loan.Status)
	s.Equal(uint64(700), loan.AprBps)

	agg, err := s.ledger.GetAggregate(context.Background(), "alice")
	s.Require().NoError(err)
	s.Equal(int64(200_000), agg.TotalCollateralValue)
	s.Equal(int64(100_000), agg.TotalBorrowedValue)

	s.Require().Len(s.sink.events, 1)
	s.Equal(events.TypeLoanOpened, s.sink.events[0].Type)
}

func (s *VaultServiceSuite) TestBorrowRejectsLtvAboveTier() {
	// 6_500 bps max: 150_000 against 200_000 collateral is 7_500 bps.
	s.oracle.EXPECT().QuoteUsd(gomock.Any(), "ETH", int64(10)).Return(int64(200_000), nil)

	_, err := s.service.Borrow(context.Background(), "alice", 10, "ETH", 150_000)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)

	agg, aggErr := s.ledger.GetAggregate(context.Background(), "alice")
	s.Require().NoError(aggErr)
	s.Equal(uint64(0), agg.TotalLoans, "rejected borrow must not touch the ledger")
	s.Empty(s.sink.events)
}

func (s *VaultServiceSuite) TestBorrowOracleFailureAbortsBeforeLedger() {
	s.oracle.EXPECT().QuoteUsd(gomock.Any(), "ETH", int64(10)).Return(int64(0), errors.New("stale price"))

	_, err := s.service.Borrow(context.Background(), "alice", 10, "ETH", 100_000)
	s.True(dErrors.HasCode(err, dErrors.CodeOracle), "got %v", err)

	agg, aggErr := s.ledger.GetAggregate(context.Background(), "alice")
	s.Require().NoError(aggErr)
	s.Equal(uint64(0), agg.TotalLoans)
}

func (s *VaultServiceSuite) TestBorrowCustodyFailureAborts() {
	s.oracle.EXPECT().QuoteUsd(gomock.Any(), "ETH", int64(10)).Return(int64(200_000), nil)
	s.custody.EXPECT().TransferIn(gomock.Any(), ledger.Subject("alice"), "ETH", int64(10)).Return(errors.New("chain halted"))

	_, err := s.service.Borrow(context.Background(), "alice", 10, "ETH", 100_000)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal), "got %v", err)

	agg, aggErr := s.ledger.GetAggregate(context.Background(), "alice")
	s.Require().NoError(aggErr)
	s.Equal(uint64(0), agg.TotalLoans)
}

func (s *VaultServiceSuite) TestBorrowValidation() {
	tests := []struct {
		name      string
		subject   ledger.Subject
		amount    int64
		asset     string
		principal int64
	}{
		{"empty subject", "", 10, "ETH", 100},
		{"zero principal", "alice", 10, "ETH", 0},
		{"zero collateral", "alice", 0, "ETH", 100},
		{"empty asset", "alice", 10, "", 100},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.Borrow(context.Background(), tt.subject, tt.amount, tt.asset, tt.principal)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func (s *VaultServiceSuite) TestRepayAccruesInterest() {
	result := s.borrow()

	// 700 bps APR for half a year on 100_000 is 3_500 in interest.
	s.now = s.now.Add(365 * 24 * time.Hour / 2)

	debt, err := s.service.CurrentDebt(context.Background(), result.LoanID)
	s.Require().NoError(err)
	s.Equal(int64(103_500), debt)
}

func (s *VaultServiceSuite) TestRepayRejectsOverpayment() {
	result := s.borrow()

	_, err := s.service.Repay(context.Background(), result.LoanID, 100_001)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
}

func (s *VaultServiceSuite) TestRepayConcurrentOverpaymentRejected() {
	// Two racing repayments that together exceed the debt must not both
	// commit; the ledger validates the excess under the loan's lock.
	result := s.borrow()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	for i := range errs {
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.Repay(context.Background(), result.LoanID, 60_000)
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "loser error: %v", err)
		}
	}
	s.Equal(1, winners, "exactly one repayment commits")

	loan, err := s.ledger.GetLoan(context.Background(), result.LoanID)
	s.Require().NoError(err)
	s.Equal(ledger.LoanActive, loan.Status)
	s.Equal(int64(60_000), loan.RepaidAmount)
}

func (s *VaultServiceSuite) TestRepayFullClosesAndReleasesCollateral() {
	result := s.borrow()
	s.custody.EXPECT().TransferOut(gomock.Any(), ledger.Subject("alice"), "ETH", int64(10)).Return(nil)

	repay, err := s.service.Repay(context.Background(), result.LoanID, 100_000)
	s.Require().NoError(err)
	s.Equal(ledger.LoanRepaid, repay.Loan.Status)
	s.Equal(int64(0), repay.RemainingDebt)

	types := make([]events.Type, 0, len(s.sink.events))
	for _, e := range s.sink.events {
		types = append(types, e.Type)
	}
	s.Equal([]events.Type{events.TypeLoanOpened, events.TypeLoanRepayment, events.TypeLoanRepaid}, types)
}

func (s *VaultServiceSuite) TestRepayPartialKeepsLoanActive() {
	result := s.borrow()

	repay, err := s.service.Repay(context.Background(), result.LoanID, 40_000)
	s.Require().NoError(err)
	s.Equal(ledger.LoanActive, repay.Loan.Status)
	s.Equal(int64(60_000), repay.RemainingDebt)
}

func (s *VaultServiceSuite) TestRepayTerminalLoanIsStateError() {
	result := s.borrow()
	s.custody.EXPECT().TransferOut(gomock.Any(), ledger.Subject("alice"), "ETH", int64(10)).Return(nil)

	_, err := s.service.Repay(context.Background(), result.LoanID, 100_000)
	s.Require().NoError(err)

	_, err = s.service.Repay(context.Background(), result.LoanID, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeState), "got %v", err)
}

func (s *VaultServiceSuite) TestHealthFactor() {
	result := s.borrow()

	// Threshold factor 85%: 200_000 * 0.85 / 100_000 = 1.7.
	s.oracle.EXPECT().QuoteUsd(gomock.Any(), "ETH", int64(10)).Return(int64(200_000), nil)
	hf, err := s.service.HealthFactor(context.Background(), result.LoanID)
	s.Require().NoError(err)
	s.InDelta(1.7, hf, 0.001)

	// Collateral value halves: 100_000 * 0.85 / 100_000 = 0.85, unhealthy.
	s.oracle.EXPECT().QuoteUsd(gomock.Any(), "ETH", int64(10)).Return(int64(100_000), nil)
	hf, err = s.service.HealthFactor(context.Background(), result.LoanID)
	s.Require().NoError(err)
	s.InDelta(0.85, hf, 0.001)
}

func (s *VaultServiceSuite) TestHealthFactorTerminalLoanIsStateError() {
	result := s.borrow()
	s.custody.EXPECT().TransferOut(gomock.Any(), ledger.Subject("alice"), "ETH", int64(10)).Return(nil)

	_, err := s.service.Repay(context.Background(), result.LoanID, 100_000)
	s.Require().NoError(err)

	_, err = s.service.HealthFactor(context.Background(), result.LoanID)
	s.True(dErrors.HasCode(err, dErrors.CodeState), "got %v", err)
}

// zeroDebtLedger returns an active loan whose debt nets to zero, a state the
// public API cannot reach but the health computation must still handle.
type zeroDebtLedger struct {
	LoanLedger
	loan *ledger.LoanRecord
}

func (z *zeroDebtLedger) GetLoan(context.Context, uuid.UUID) (*ledger.LoanRecord, error) {
	return z.loan, nil
}

func (s *VaultServiceSuite) TestHealthFactorInfiniteWhenDebtZero() {
	loan := &ledger.LoanRecord{
		ID:               uuid.New(),
		Subject:          "alice",
		Principal:        100,
		RepaidAmount:     100,
		CollateralAmount: 10,
		CollateralAsset:  "ETH",
		OpenedAt:         s.now,
		Status:           ledger.LoanActive,
	}
	svc := New(&zeroDebtLedger{loan: loan}, &stubScorer{terms: goldTerms}, s.oracle, s.custody,
		WithClock(func() time.Time { return s.now }))

	s.oracle.EXPECT().QuoteUsd(gomock.Any(), "ETH", int64(10)).Return(int64(200), nil)
	hf, err := svc.HealthFactor(context.Background(), loan.ID)
	s.Require().NoError(err)
	s.True(math.IsInf(hf, 1))
}

func (s *VaultServiceSuite) TestHealthFactorUnknownLoan() {
	_, err := s.service.HealthFactor(context.Background(), uuid.New())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "got %v", err)
}
