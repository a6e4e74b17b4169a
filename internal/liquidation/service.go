// Package liquidation runs Dutch-auction liquidations over unhealthy loans.
// An auction opens with a tier-dependent grace period; once it ends the
// executor discount ramps linearly with wall-clock time. Both the grace
// check and the discount are recomputed from timestamps on every read, so
// the module carries no timers and nothing to cancel.
package liquidation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"trustline/internal/events"
	"trustline/internal/ledger"
	"trustline/internal/liquidation/metrics"
	"trustline/internal/scoring"
	"trustline/internal/vault/ports"
	"trustline/pkg/bps"
	dErrors "trustline/pkg/domain-errors"
)

const (
	// DefaultTriggerThreshold is the health factor below which a loan
	// becomes liquidatable.
	DefaultTriggerThreshold = 0.95
	// DefaultMaxDiscountBps caps the executor discount at 20%.
	DefaultMaxDiscountBps uint64 = 2_000
	// DefaultRampDuration is how long the discount takes to reach its cap
	// after the grace period ends.
	DefaultRampDuration = 6 * time.Hour
)

// LoanHealth is the slice of the vault the liquidator reads.
type LoanHealth interface {
	GetLoan(ctx context.Context, loanID uuid.UUID) (*ledger.LoanRecord, error)
	HealthFactor(ctx context.Context, loanID uuid.UUID) (float64, error)
	CurrentDebt(ctx context.Context, loanID uuid.UUID) (int64, error)
}

// TermsProvider supplies the subject's scorecard, which carries the
// tier grace period.
type TermsProvider interface {
	ComputeScore(ctx context.Context, subject ledger.Subject) (*scoring.Scorecard, error)
}

// LiquidationLedger commits the terminal loan transition.
type LiquidationLedger interface {
	RegisterLiquidation(ctx context.Context, loanID uuid.UUID) (*ledger.LoanRecord, error)
}

// LossCoverer absorbs shortfall when auction proceeds fall short of debt.
type LossCoverer interface {
	CoverLoss(ctx context.Context, loanPrincipal, lossAmount int64) (int64, error)
}

// EventSink receives lifecycle events. Emission never blocks.
type EventSink interface {
	Emit(ctx context.Context, event events.Event)
}

// Service owns auction state and drives the liquidation state machine.
type Service struct {
	store     Store
	vault     LoanHealth
	scorer    TermsProvider
	ledger    LiquidationLedger
	oracle    ports.PriceOracle
	insurance LossCoverer
	sink      EventSink

	threshold      float64
	maxDiscountBps uint64
	rampDuration   time.Duration

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

// WithInsurance routes shortfall coverage to the fund.
func WithInsurance(fund LossCoverer) Option {
	return func(s *Service) { s.insurance = fund }
}

// WithEventSink attaches the lifecycle event publisher.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithTriggerThreshold overrides the health factor trigger.
func WithTriggerThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithDiscountRamp overrides the discount cap and ramp duration applied to
// new auctions.
func WithDiscountRamp(maxBps uint64, ramp time.Duration) Option {
	return func(s *Service) {
		if maxBps > 0 {
			s.maxDiscountBps = maxBps
		}
		if ramp > 0 {
			s.rampDuration = ramp
		}
	}
}

// New constructs the liquidation service.
func New(store Store, vault LoanHealth, scorer TermsProvider, loanLedger LiquidationLedger, oracle ports.PriceOracle, opts ...Option) *Service {
	s := &Service{
		store:          store,
		vault:          vault,
		scorer:         scorer,
		ledger:         loanLedger,
		oracle:         oracle,
		threshold:      DefaultTriggerThreshold,
		maxDiscountBps: DefaultMaxDiscountBps,
		rampDuration:   DefaultRampDuration,
		tracer:         otel.Tracer("trustline/liquidation"),
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DiscountAt returns the executor discount in basis points at the given
// instant: zero through the grace period, then a linear ramp to the cap.
func (a *Auction) DiscountAt(now time.Time) uint64 {
	if !now.After(a.GraceEndAt) {
		return 0
	}
	if a.RampDuration <= 0 {
		return a.MaxDiscountBps
	}
	elapsed := now.Sub(a.GraceEndAt)
	if elapsed >= a.RampDuration {
		return a.MaxDiscountBps
	}
	return a.MaxDiscountBps * uint64(elapsed) / uint64(a.RampDuration)
}

// StartLiquidation opens a Pending auction on an unhealthy loan. The grace
// period comes from the subject's current tier, so better borrowers get more
// time to cure before the discount ramp begins.
func (s *Service) StartLiquidation(ctx context.Context, loanID uuid.UUID) (*Auction, error) {
	ctx, span := s.tracer.Start(ctx, "liquidation.start",
		trace.WithAttributes(attribute.String("loan_id", loanID.String())))
	defer span.End()

	loan, err := s.vault.GetLoan(ctx, loanID)
	if err != nil {
		return nil, recordError(span, err)
	}

	hf, err := s.vault.HealthFactor(ctx, loanID)
	if err != nil {
		return nil, s.rejectStart(span, "health", err)
	}
	if hf >= s.threshold {
		return nil, s.rejectStart(span, "healthy", dErrors.Newf(dErrors.CodeState,
			"health factor %.4f is at or above the %.2f trigger", hf, s.threshold))
	}

	card, err := s.scorer.ComputeScore(ctx, loan.Subject)
	if err != nil {
		return nil, s.rejectStart(span, "score", err)
	}

	now := s.clock()
	auction := &Auction{
		ID:             uuid.New(),
		LoanID:         loanID,
		Subject:        loan.Subject,
		StartedAt:      now,
		GraceEndAt:     now.Add(card.Terms.GracePeriod),
		MaxDiscountBps: s.maxDiscountBps,
		RampDuration:   s.rampDuration,
		Status:         AuctionPending,
	}
	if err := s.store.Create(ctx, auction); err != nil {
		if errors.Is(err, ErrAuctionOpen) {
			return nil, s.rejectStart(span, "open_auction", dErrors.Wrap(err, dErrors.CodeState,
				"liquidation already in progress"))
		}
		return nil, s.rejectStart(span, "store", dErrors.Wrap(err, dErrors.CodeInternal, "create auction"))
	}

	s.metrics.IncStarted()
	s.emit(ctx, events.Event{
		Type:      events.TypeAuctionStarted,
		Subject:   loan.Subject,
		LoanID:    loanID,
		AuctionID: auction.ID,
	})
	s.log(ctx, "auction started",
		"auction_id", auction.ID, "loan_id", loanID,
		"subject", loan.Subject, "tier", card.Terms.Tier,
		"grace_end_at", auction.GraceEndAt, "health_factor", hf)
	return auction, nil
}

// GetAuction returns the auction by ID.
func (s *Service) GetAuction(ctx context.Context, auctionID uuid.UUID) (*Auction, error) {
	auction, err := s.store.Get(ctx, auctionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "auction lookup")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "auction lookup")
	}
	return auction, nil
}

// CurrentDiscount reports the discount in effect right now. Executed
// auctions report the discount they settled at.
func (s *Service) CurrentDiscount(ctx context.Context, auctionID uuid.UUID) (uint64, error) {
	auction, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	if auction.Status.Terminal() {
		return auction.FinalDiscountBps, nil
	}
	return auction.DiscountAt(s.clock()), nil
}

// ExecuteLiquidation settles a Pending auction past its grace period. The
// executor buys the collateral at the current discount; proceeds retire the
// debt, any shortfall is claimed from the insurance fund and any surplus is
// owed back to the borrower. The ledger's terminal transition is the
// arbiter: if a repayment already closed the loan, execution fails with a
// state error and the auction stays Pending for cancellation.
func (s *Service) ExecuteLiquidation(ctx context.Context, auctionID uuid.UUID) (*Auction, error) {
	ctx, span := s.tracer.Start(ctx, "liquidation.execute",
		trace.WithAttributes(attribute.String("auction_id", auctionID.String())))
	defer span.End()

	auction, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, recordError(span, err)
	}
	now := s.clock()
	if err := executable(auction, now); err != nil {
		return nil, recordError(span, err)
	}

	loan, err := s.vault.GetLoan(ctx, auction.LoanID)
	if err != nil {
		return nil, recordError(span, err)
	}
	debt, err := s.vault.CurrentDebt(ctx, auction.LoanID)
	if err != nil {
		return nil, recordError(span, err)
	}
	collateralValue, err := s.oracle.QuoteUsd(ctx, loan.CollateralAsset, loan.CollateralAmount)
	if err != nil {
		return nil, recordError(span, oracleError(err, loan.CollateralAsset))
	}

	executed, err := s.store.Mutate(ctx, auctionID, func(a *Auction) error {
		if err := executable(a, now); err != nil {
			return err
		}
		// Loan CAS first: a racing repayment that already closed the loan
		// aborts here and leaves the auction untouched.
		if _, err := s.ledger.RegisterLiquidation(ctx, a.LoanID); err != nil {
			return err
		}

		discount := a.DiscountAt(now)
		payout := collateralValue - bps.Apply(collateralValue, discount)

		a.Status = AuctionExecuted
		a.ClosedAt = &now
		a.FinalDiscountBps = discount
		a.Payout = payout
		if payout >= debt {
			a.Surplus = payout - debt
			return nil
		}
		loss := debt - payout
		if s.insurance != nil {
			covered, err := s.insurance.CoverLoss(ctx, loan.Principal, loss)
			if err != nil {
				s.logError(ctx, "loss coverage failed", "auction_id", a.ID, "error", err)
				return nil
			}
			a.Covered = covered
		}
		return nil
	})
	if err != nil {
		return nil, recordError(span, err)
	}

	s.metrics.IncExecuted()
	s.metrics.ObserveDiscount(executed.FinalDiscountBps)
	s.emit(ctx, events.Event{
		Type:      events.TypeLoanLiquidated,
		Subject:   executed.Subject,
		LoanID:    executed.LoanID,
		AuctionID: executed.ID,
		Amount:    debt,
	})
	s.emit(ctx, events.Event{
		Type:      events.TypeAuctionExecuted,
		Subject:   executed.Subject,
		LoanID:    executed.LoanID,
		AuctionID: executed.ID,
		Amount:    executed.Payout,
	})
	if executed.Covered > 0 {
		s.metrics.AddShortfallCovered(executed.Covered)
		s.emit(ctx, events.Event{
			Type:      events.TypeLossCovered,
			Subject:   executed.Subject,
			LoanID:    executed.LoanID,
			AuctionID: executed.ID,
			Amount:    executed.Covered,
		})
	}
	if executed.Surplus > 0 {
		s.metrics.AddSurplusReturned(executed.Surplus)
	}
	s.log(ctx, "auction executed",
		"auction_id", executed.ID, "loan_id", executed.LoanID,
		"discount_bps", executed.FinalDiscountBps, "payout", executed.Payout,
		"covered", executed.Covered, "surplus", executed.Surplus)
	return executed, nil
}

// CancelAuction closes a Pending auction whose loan has recovered above the
// trigger threshold. A loan the borrower fully repaid during grace counts as
// recovered, so its auction does not stay pending forever. Nothing is
// written to the ledger.
func (s *Service) CancelAuction(ctx context.Context, auctionID uuid.UUID) (*Auction, error) {
	ctx, span := s.tracer.Start(ctx, "liquidation.cancel",
		trace.WithAttributes(attribute.String("auction_id", auctionID.String())))
	defer span.End()

	auction, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, recordError(span, err)
	}
	if auction.Status != AuctionPending {
		return nil, recordError(span, dErrors.Newf(dErrors.CodeState,
			"auction is %s, not pending", auction.Status))
	}

	loan, err := s.vault.GetLoan(ctx, auction.LoanID)
	if err != nil {
		return nil, recordError(span, err)
	}
	hf := math.Inf(1)
	if !loan.Status.Terminal() {
		hf, err = s.vault.HealthFactor(ctx, auction.LoanID)
		if err != nil {
			return nil, recordError(span, err)
		}
		if hf < s.threshold {
			return nil, recordError(span, dErrors.Newf(dErrors.CodeState,
				"health factor %.4f is still below the %.2f trigger", hf, s.threshold))
		}
	}

	now := s.clock()
	cancelled, err := s.store.Mutate(ctx, auctionID, func(a *Auction) error {
		if a.Status != AuctionPending {
			return dErrors.Newf(dErrors.CodeState, "auction is %s, not pending", a.Status)
		}
		a.Status = AuctionCancelled
		a.ClosedAt = &now
		return nil
	})
	if err != nil {
		return nil, recordError(span, err)
	}

	s.metrics.IncCancelled()
	s.emit(ctx, events.Event{
		Type:      events.TypeAuctionCancelled,
		Subject:   cancelled.Subject,
		LoanID:    cancelled.LoanID,
		AuctionID: cancelled.ID,
	})
	s.log(ctx, "auction cancelled",
		"auction_id", cancelled.ID, "loan_id", cancelled.LoanID, "health_factor", hf)
	return cancelled, nil
}

// executable rejects execution on terminal auctions and during grace.
func executable(a *Auction, now time.Time) error {
	if a.Status != AuctionPending {
		return dErrors.Newf(dErrors.CodeState, "auction is %s, not pending", a.Status)
	}
	if now.Before(a.GraceEndAt) {
		return dErrors.Newf(dErrors.CodeState,
			"grace period active until %s", a.GraceEndAt.Format(time.RFC3339))
	}
	return nil
}

func (s *Service) rejectStart(span trace.Span, reason string, err error) error {
	s.metrics.IncStartRejected(reason)
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
