// Package vault orchestrates the loan lifecycle: it turns scorecards and
// oracle prices into funded loans, applies repayments, and computes health
// factors. It holds no state of its own; the ledger is the system of record.
package vault

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trustline/internal/events"
	"trustline/internal/ledger"
	"trustline/internal/scoring"
	"trustline/internal/vault/metrics"
	"trustline/internal/vault/ports"
	"trustline/pkg/bps"
	dErrors "trustline/pkg/domain-errors"
)

// DefaultLiquidationThresholdFactorBps discounts collateral value when
// computing health, so loans turn unhealthy before they turn underwater.
const DefaultLiquidationThresholdFactorBps = 8_500

// ScoreProvider supplies the subject's current scorecard.
type ScoreProvider interface {
	ComputeScore(ctx context.Context, subject ledger.Subject) (*scoring.Scorecard, error)
}

// LoanLedger is the slice of the ledger the vault drives.
type LoanLedger interface {
	RegisterLoan(ctx context.Context, subject ledger.Subject, principal, collateralAmount int64, collateralAsset string, collateralValue int64, ltvBps, aprBps uint64) (uuid.UUID, error)
	RegisterRepayment(ctx context.Context, loanID uuid.UUID, amount int64, now time.Time) (*ledger.LoanRecord, error)
	RecordCollateralUse(ctx context.Context, loanID uuid.UUID, tierMaxLtvBps uint64) error
	GetLoan(ctx context.Context, loanID uuid.UUID) (*ledger.LoanRecord, error)
}

// RevenueSink receives protocol revenue, e.g. the insurance fund.
type RevenueSink interface {
	AllocateRevenue(ctx context.Context, protocolRevenue int64) (int64, error)
}

// EventSink receives lifecycle events. Emission never blocks.
type EventSink interface {
	Emit(ctx context.Context, event events.Event)
}

// Service implements borrow, repay and health-factor computation.
type Service struct {
	ledger  LoanLedger
	scorer  ScoreProvider
	oracle  ports.PriceOracle
	custody ports.AssetCustody
	revenue RevenueSink
	sink    EventSink

	thresholdFactorBps uint64

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	clock   func() time.Time
}

// Option customizes the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source. Used in tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithRevenueSink routes interest revenue on full repayment.
func WithRevenueSink(sink RevenueSink) Option {
	return func(s *Service) { s.revenue = sink }
}

// WithEventSink attaches the lifecycle event publisher.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithThresholdFactorBps overrides the liquidation threshold factor.
func WithThresholdFactorBps(factor uint64) Option {
	return func(s *Service) {
		if factor > 0 {
			s.thresholdFactorBps = factor
		}
	}
}

// New constructs the vault service.
func New(loanLedger LoanLedger, scorer ScoreProvider, oracle ports.PriceOracle, custody ports.AssetCustody, opts ...Option) *Service {
	s := &Service{
		ledger:             loanLedger,
		scorer:             scorer,
		oracle:             oracle,
		custody:            custody,
		thresholdFactorBps: DefaultLiquidationThresholdFactorBps,
		tracer:             otel.Tracer("trustline/vault"),
		clock:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BorrowResult reports the opened loan and the terms it was granted.
type BorrowResult struct {
	LoanID          uuid.UUID
	CollateralValue int64
	LtvBps          uint64
	Terms           scoring.TermSheet
}

// Borrow opens a loan against collateral. The oracle quote and the scorecard
// are fetched in parallel; the loan is rejected when the requested principal
// exceeds the tier's maximum LTV. Ledger writes happen only after every
// external step has succeeded, so a failure never leaves partial state.
func (s *Service) Borrow(ctx context.Context, subject ledger.Subject, collateralAmount int64, collateralAsset string, requestedPrincipal int64) (*BorrowResult, error) {
	start := s.clock()
	ctx, span := s.tracer.Start(ctx, "vault.borrow",
		trace.WithAttributes(
			attribute.String("subject", string(subject)),
			attribute.String("asset", collateralAsset),
		))
	defer span.End()

	if subject == "" {
		return nil, s.rejectBorrow(span, "validation", dErrors.New(dErrors.CodeValidation, "subject must not be empty"))
	}
	if requestedPrincipal <= 0 {
		return nil, s.rejectBorrow(span, "validation", dErrors.New(dErrors.CodeValidation, "requested principal must be positive"))
	}
	if collateralAmount <= 0 || collateralAsset == "" {
		return nil, s.rejectBorrow(span, "validation", dErrors.New(dErrors.CodeValidation, "collateral amount and asset are required"))
	}

	var (
		card            *scoring.Scorecard
		collateralValue int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		card, err = s.scorer.ComputeScore(gctx, subject)
		return err
	})
	g.Go(func() error {
		value, err := s.oracle.QuoteUsd(gctx, collateralAsset, collateralAmount)
		if err != nil {
			return oracleError(err, collateralAsset)
		}
		collateralValue = value
		return nil
	})
	if err := g.Wait(); err != nil {
		reason := "oracle"
		if !dErrors.HasCode(err, dErrors.CodeOracle) {
			reason = "score"
		}
		return nil, s.rejectBorrow(span, reason, err)
	}

	if collateralValue <= 0 {
		return nil, s.rejectBorrow(span, "oracle", dErrors.Newf(dErrors.CodeOracle, "oracle returned non-positive value for %s", collateralAsset))
	}

	ltvBps := bps.Ratio(requestedPrincipal, collateralValue)
	if ltvBps > card.Terms.MaxLtvBps {
		return nil, s.rejectBorrow(span, "ltv", dErrors.Newf(dErrors.CodeValidation,
			"requested LTV %d bps exceeds tier %s maximum %d bps",
			ltvBps, card.Terms.Tier, card.Terms.MaxLtvBps))
	}

	if err := s.custody.TransferIn(ctx, subject, collateralAsset, collateralAmount); err != nil {
		return nil, s.rejectBorrow(span, "custody", dErrors.Wrap(err, dErrors.CodeInternal, "collateral transfer in failed"))
	}

	loanID, err := s.ledger.RegisterLoan(ctx, subject, requestedPrincipal, collateralAmount, collateralAsset, collateralValue, ltvBps, card.Terms.AprBps)
	if err != nil {
		// Return the collateral; the loan never existed.
		if rbErr := s.custody.TransferOut(ctx, subject, collateralAsset, collateralAmount); rbErr != nil {
			s.logError(ctx, "collateral rollback failed after ledger rejection",
				"subject", subject, "asset", collateralAsset, "error", rbErr)
		}
		return nil, s.rejectBorrow(span, "ledger", err)
	}

	if err := s.ledger.RecordCollateralUse(ctx, loanID, card.Terms.MaxLtvBps); err != nil {
		s.logError(ctx, "collateral use recording failed", "loan_id", loanID, "error", err)
	}

	s.emit(ctx, events.Event{
		Type:    events.TypeLoanOpened,
		Subject: subject,
		LoanID:  loanID,
		Amount:  requestedPrincipal,
	})
	s.metrics.IncBorrows(string(card.Terms.Tier))
	s.metrics.ObserveBorrowLatency(s.clock().Sub(start))
	s.log(ctx, "loan opened",
		"loan_id", loanID,
		"subject", subject,
		"principal", requestedPrincipal,
		"ltv_bps", ltvBps,
		"tier", card.Terms.Tier,
	)

	return &BorrowResult{
		LoanID:          loanID,
		CollateralValue: collateralValue,
		LtvBps:          ltvBps,
		Terms:           card.Terms,
	}, nil
}

// RepayResult reports the loan state after a repayment.
type RepayResult struct {
	Loan          *ledger.LoanRecord
	RemainingDebt int64
}

// Repay applies a payment toward the loan's current debt. Paying more than
// the outstanding debt is rejected rather than silently absorbed; the ledger
// validates the excess under the loan's lock, so two racing repayments can
// never both pass against the same debt snapshot. When the principal is
// fully covered the loan closes and collateral is released.
func (s *Service) Repay(ctx context.Context, loanID uuid.UUID, amount int64) (*RepayResult, error) {
	ctx, span := s.tracer.Start(ctx, "vault.repay",
		trace.WithAttributes(attribute.String("loan_id", loanID.String())))
	defer span.End()

	if amount <= 0 {
		return nil, recordError(span, dErrors.New(dErrors.CodeValidation, "repayment amount must be positive"))
	}

	now := s.clock()
	loan, err := s.ledger.RegisterRepayment(ctx, loanID, amount, now)
	if err != nil {
		return nil, recordError(span, err)
	}
	s.metrics.IncRepayments()
	s.emit(ctx, events.Event{
		Type:    events.TypeLoanRepayment,
		Subject: loan.Subject,
		LoanID:  loanID,
		Amount:  amount,
	})

	if loan.Status == ledger.LoanRepaid {
		// Release collateral; a custody failure here is operational, the
		// loan is already closed.
		if err := s.custody.TransferOut(ctx, loan.Subject, loan.CollateralAsset, loan.CollateralAmount); err != nil {
			s.logError(ctx, "collateral release failed", "loan_id", loanID, "error", err)
		}
		if interest := loan.RepaidAmount - loan.Principal; interest > 0 && s.revenue != nil {
			if _, err := s.revenue.AllocateRevenue(ctx, interest); err != nil {
				s.logError(ctx, "revenue allocation failed", "loan_id", loanID, "error", err)
			}
		}
		s.emit(ctx, events.Event{
			Type:    events.TypeLoanRepaid,
			Subject: loan.Subject,
			LoanID:  loanID,
			Amount:  loan.RepaidAmount,
		})
		s.log(ctx, "loan repaid", "loan_id", loanID, "subject", loan.Subject)
	}

	return &RepayResult{
		Loan:          loan,
		RemainingDebt: loan.DebtAt(now),
	}, nil
}

// HealthFactor reads the loan's health from a fresh oracle quote. Readings
// below 1.0 mean the discounted collateral no longer covers the debt.
func (s *Service) HealthFactor(ctx context.Context, loanID uuid.UUID) (float64, error) {
	loan, err := s.ledger.GetLoan(ctx, loanID)
	if err != nil {
		return 0, err
	}
	if loan.Status.Terminal() {
		return 0, dErrors.Newf(dErrors.CodeState, "loan is %s, not active", loan.Status)
	}

	collateralUsd, err := s.oracle.QuoteUsd(ctx, loan.CollateralAsset, loan.CollateralAmount)
	if err != nil {
		return 0, oracleError(err, loan.CollateralAsset)
	}

	debt := loan.DebtAt(s.clock())
	if debt == 0 {
		return math.Inf(1), nil
	}

	hf := float64(bps.Apply(collateralUsd, s.thresholdFactorBps)) / float64(debt)
	s.metrics.ObserveHealthFactor(hf)
	return hf, nil
}

// CurrentDebt returns the loan's outstanding debt at the current instant.
func (s *Service) CurrentDebt(ctx context.Context, loanID uuid.UUID) (int64, error) {
	loan, err := s.ledger.GetLoan(ctx, loanID)
	if err != nil {
		return 0, err
	}
	return loan.DebtAt(s.clock()), nil
}

// GetLoan exposes the ledger's loan lookup for the HTTP layer.
func (s *Service) GetLoan(ctx context.Context, loanID uuid.UUID) (*ledger.LoanRecord, error) {
	return s.ledger.GetLoan(ctx, loanID)
}

func (s *Service) rejectBorrow(span trace.Span, reason string, err error) error {
	s.metrics.IncBorrowRejected(reason)
	return recordError(span, err)
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.sink != nil {
		s.sink.Emit(ctx, event)
	}
}

func (s *Service) log(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, args...)
	}
}

func (s *Service) logError(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, msg, args...)
	}
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// oracleError coerces oracle failures to the oracle error code unless the
// adapter already classified them.
func oracleError(err error, asset string) error {
	if dErrors.CodeOf(err) != "" {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeOracle, "price lookup failed for "+asset)
}
