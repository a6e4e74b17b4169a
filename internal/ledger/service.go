package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"trustline/internal/ledger/metrics"
	dErrors "trustline/pkg/domain-errors"
)

// maxLtvToleranceBps is how close (in bps) a loan's opening LTV must be to
// the tier maximum before it counts as a max-LTV borrow.
const maxLtvToleranceBps = 50

// Service is the single owner of canonical credit state. Every mutation is
// O(1): counters and running sums only, never a walk over loan history.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// New constructs a ledger Service over the given store.
func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterLoan records a new Active loan and bumps the subject's counters.
func (s *Service) RegisterLoan(ctx context.Context, subject Subject, principal, collateralAmount int64, collateralAsset string, collateralValue int64, ltvBps, aprBps uint64) (uuid.UUID, error) {
	if strings.TrimSpace(string(subject)) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if principal <= 0 {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "principal must be positive")
	}
	if collateralValue <= 0 || collateralAmount <= 0 {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, "collateral must be positive")
	}

	now := s.clock()
	loan := &LoanRecord{
		ID:               uuid.New(),
		Subject:          subject,
		Principal:        principal,
		CollateralAmount: collateralAmount,
		CollateralAsset:  collateralAsset,
		CollateralValue:  collateralValue,
		LtvAtOpen:        ltvBps,
		AprBps:           aprBps,
		OpenedAt:         now,
		Status:           LoanActive,
	}

	err := s.store.CreateLoan(ctx, loan, func(agg *AggregateCreditData) {
		agg.TotalLoans++
		agg.ActiveLoans++
		if agg.FirstSeen.IsZero() {
			agg.FirstSeen = now
		}
	})
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register loan")
	}

	s.metrics.IncLoansRegistered()
	s.log(ctx, "loan registered", "loan_id", loan.ID, "subject", subject, "principal", principal)
	return loan.ID, nil
}

// RegisterRepayment adds to the loan's repaid amount. The overpayment check
// runs against the debt at the given instant inside the loan's lock, so
// concurrent repayments see each other's commits and can never push the
// repaid amount past what is owed. When cumulative repayments reach the
// principal the loan transitions to Repaid and the subject's counters move
// accordingly. Returns the updated record.
func (s *Service) RegisterRepayment(ctx context.Context, loanID uuid.UUID, amount int64, now time.Time) (*LoanRecord, error) {
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "repayment amount must be positive")
	}

	var (
		updated      LoanRecord
		transitioned bool
	)
	err := s.store.MutateLoan(ctx, loanID,
		func(loan *LoanRecord) error {
			if loan.Status != LoanActive {
				return dErrors.Newf(dErrors.CodeState, "loan is %s, not active", loan.Status)
			}
			if debt := loan.DebtAt(now); amount > debt {
				return dErrors.Newf(dErrors.CodeValidation,
					"payment %d exceeds current debt %d", amount, debt)
			}
			loan.RepaidAmount += amount
			if loan.RepaidAmount >= loan.Principal {
				loan.Status = LoanRepaid
				closed := s.clock()
				loan.ClosedAt = &closed
				transitioned = true
			}
			updated = *loan
			return nil
		},
		func(agg *AggregateCreditData) {
			if transitioned {
				agg.RepaidLoans++
				agg.ActiveLoans--
			}
		},
	)
	if err != nil {
		return nil, s.mutationError(err, loanID, "failed to register repayment")
	}

	if transitioned {
		s.metrics.IncLoansClosed(string(LoanRepaid))
	}
	s.log(ctx, "repayment registered", "loan_id", loanID, "amount", amount, "repaid", transitioned)
	return &updated, nil
}

// RegisterLiquidation transitions an Active loan to Liquidated. The atomic
// status check here is the arbiter when a repayment and a liquidation race:
// whichever transition commits first wins and the loser sees a state error.
func (s *Service) RegisterLiquidation(ctx context.Context, loanID uuid.UUID) (*LoanRecord, error) {
	var updated LoanRecord
	err := s.store.MutateLoan(ctx, loanID,
		func(loan *LoanRecord) error {
			if loan.Status != LoanActive {
				return dErrors.Newf(dErrors.CodeState, "loan is %s, not active", loan.Status)
			}
			loan.Status = LoanLiquidated
			closed := s.clock()
			loan.ClosedAt = &closed
			updated = *loan
			return nil
		},
		func(agg *AggregateCreditData) {
			agg.LiquidatedLoans++
			agg.ActiveLoans--
		},
	)
	if err != nil {
		return nil, s.mutationError(err, loanID, "failed to register liquidation")
	}

	s.metrics.IncLoansClosed(string(LoanLiquidated))
	s.log(ctx, "liquidation registered", "loan_id", loanID)
	return &updated, nil
}

// RecordCollateralUse folds a loan's collateral posture into the subject's
// running sums. tierMaxLtvBps is the tier ceiling at borrow time, used to
// spot borrowers who habitually max out their leverage.
func (s *Service) RecordCollateralUse(ctx context.Context, loanID uuid.UUID, tierMaxLtvBps uint64) error {
	var snapshot LoanRecord
	err := s.store.MutateLoan(ctx, loanID,
		func(loan *LoanRecord) error {
			snapshot = *loan
			return nil
		},
		func(agg *AggregateCreditData) {
			agg.ensureMaps()
			agg.TotalCollateralValue += snapshot.CollateralValue
			agg.TotalBorrowedValue += snapshot.Principal
			agg.CollateralAssets[snapshot.CollateralAsset]++
			if snapshot.LtvAtOpen+maxLtvToleranceBps >= tierMaxLtvBps {
				agg.MaxLtvBorrowCount++
			}
		},
	)
	if err != nil {
		return s.mutationError(err, loanID, "failed to record collateral use")
	}
	return nil
}

// SubmitKYCProof stores the latest identity proof for the subject.
func (s *Service) SubmitKYCProof(ctx context.Context, subject Subject, proofHash string, expiresAt time.Time) error {
	if strings.TrimSpace(proofHash) == "" {
		return dErrors.New(dErrors.CodeValidation, "proof hash is required")
	}
	if !expiresAt.After(s.clock()) {
		return dErrors.New(dErrors.CodeValidation, "proof is already expired")
	}
	err := s.store.MutateAggregate(ctx, subject, func(agg *AggregateCreditData) error {
		agg.KYC = KYCProof{Verified: true, ProofHash: proofHash, ExpiresAt: expiresAt}
		s.touch(agg)
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit kyc proof")
	}
	s.metrics.IncKYCSubmissions()
	return nil
}

// Stake adds to the subject's stake, starting the stake clock on first stake.
func (s *Service) Stake(ctx context.Context, subject Subject, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "stake amount must be positive")
	}
	err := s.store.MutateAggregate(ctx, subject, func(agg *AggregateCreditData) error {
		if agg.Stake.Amount == 0 {
			agg.Stake.Since = s.clock()
		}
		agg.Stake.Amount += amount
		s.touch(agg)
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to stake")
	}
	s.metrics.IncStakeOp("stake")
	return nil
}

// Unstake removes from the subject's stake, rejecting withdrawals above the
// current position.
func (s *Service) Unstake(ctx context.Context, subject Subject, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "unstake amount must be positive")
	}
	err := s.store.MutateAggregate(ctx, subject, func(agg *AggregateCreditData) error {
		if amount > agg.Stake.Amount {
			return dErrors.New(dErrors.CodeValidation, "unstake amount exceeds current stake")
		}
		agg.Stake.Amount -= amount
		if agg.Stake.Amount == 0 {
			agg.Stake.Since = time.Time{}
		}
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to unstake")
	}
	s.metrics.IncStakeOp("unstake")
	return nil
}

// RecordVote bumps the subject's governance vote counter.
func (s *Service) RecordVote(ctx context.Context, subject Subject) error {
	return s.recordGovernance(ctx, subject, func(g *GovernanceActivity) { g.VoteCount++ })
}

// RecordProposal bumps the subject's governance proposal counter.
func (s *Service) RecordProposal(ctx context.Context, subject Subject) error {
	return s.recordGovernance(ctx, subject, func(g *GovernanceActivity) { g.ProposalCount++ })
}

func (s *Service) recordGovernance(ctx context.Context, subject Subject, bump func(*GovernanceActivity)) error {
	err := s.store.MutateAggregate(ctx, subject, func(agg *AggregateCreditData) error {
		bump(&agg.Governance)
		agg.Governance.LastActivityAt = s.clock()
		s.touch(agg)
		return nil
	})
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record governance activity")
}

// RecordCrossSourceScore ingests an external reputation score for the
// subject, keyed by source so repeated reports replace rather than grow.
func (s *Service) RecordCrossSourceScore(ctx context.Context, subject Subject, source string, score float64) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return dErrors.New(dErrors.CodeValidation, "source is required")
	}
	if score < 0 || score > 100 {
		return dErrors.New(dErrors.CodeValidation, "score must be within [0, 100]")
	}
	err := s.store.MutateAggregate(ctx, subject, func(agg *AggregateCreditData) error {
		agg.ensureMaps()
		agg.CrossSourceScores[source] = score
		s.touch(agg)
		return nil
	})
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record cross-source score")
}

// GetAggregate is a pure O(1) read. Unknown subjects get a zero-valued
// aggregate, never an error.
func (s *Service) GetAggregate(ctx context.Context, subject Subject) (*AggregateCreditData, error) {
	agg, err := s.store.GetAggregate(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read aggregate")
	}
	return agg, nil
}

// GetLoan returns a copy of the loan record.
func (s *Service) GetLoan(ctx context.Context, loanID uuid.UUID) (*LoanRecord, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, s.mutationError(err, loanID, "failed to read loan")
	}
	return loan, nil
}

// touch marks first contact for subjects whose first interaction is not a
// loan (stake, KYC, governance), so wallet age starts counting.
func (s *Service) touch(agg *AggregateCreditData) {
	if agg.FirstSeen.IsZero() {
		agg.FirstSeen = s.clock()
	}
}

func (s *Service) mutationError(err error, loanID uuid.UUID, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "loan %s not found", loanID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) log(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, args...)
	}
}
