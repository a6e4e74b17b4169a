// Package insurance pools a share of protocol revenue and caps loss coverage
// per liquidation event. The fund degrades to partial or zero coverage when
// drained; running out of balance is a reportable outcome, not an error.
package insurance

import (
	"context"
	"log/slog"
	"sync"

	"trustline/internal/insurance/metrics"
	"trustline/pkg/bps"
	dErrors "trustline/pkg/domain-errors"
)

// Snapshot is a point-in-time view of the fund.
type Snapshot struct {
	Balance        int64 `json:"balance"`
	TotalCovered   int64 `json:"total_covered"`
	TotalAllocated int64 `json:"total_allocated"`
}

// Fund holds the insurance pool. All amounts are USD cents; the coverage cap
// and revenue allocation rates are basis points of principal and revenue.
type Fund struct {
	mu             sync.Mutex
	balance        int64
	totalCovered   int64
	totalAllocated int64

	coverageBps   uint64
	allocationBps uint64

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option customizes a Fund.
type Option func(*Fund)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fund) { f.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fund) { f.metrics = m }
}

// New constructs a Fund. coverageBps caps per-event coverage as a fraction
// of loan principal; allocationBps is the share of protocol revenue routed
// into the pool.
func New(coverageBps, allocationBps uint64, opts ...Option) *Fund {
	f := &Fund{
		coverageBps:   coverageBps,
		allocationBps: allocationBps,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Deposit adds directly to the pool balance.
func (f *Fund) Deposit(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "deposit amount must be positive")
	}
	f.mu.Lock()
	f.balance += amount
	balance := f.balance
	f.mu.Unlock()

	f.metrics.SetBalance(balance)
	f.log(ctx, "insurance deposit", "amount", amount, "balance", balance)
	return nil
}

// AllocateRevenue routes the configured share of protocol revenue into the
// pool and returns the allocated amount.
func (f *Fund) AllocateRevenue(ctx context.Context, protocolRevenue int64) (int64, error) {
	if protocolRevenue < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "protocol revenue must not be negative")
	}
	allocation := bps.Apply(protocolRevenue, f.allocationBps)

	f.mu.Lock()
	f.balance += allocation
	f.totalAllocated += allocation
	balance := f.balance
	f.mu.Unlock()

	f.metrics.SetBalance(balance)
	f.metrics.AddAllocated(allocation)
	f.log(ctx, "insurance revenue allocated", "revenue", protocolRevenue, "allocation", allocation, "balance", balance)
	return allocation, nil
}

// CoverLoss reimburses a liquidation shortfall up to the per-loan cap and the
// remaining balance. A drained fund covers zero; it never fails.
func (f *Fund) CoverLoss(ctx context.Context, loanPrincipal, lossAmount int64) (int64, error) {
	if loanPrincipal < 0 || lossAmount < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "principal and loss must not be negative")
	}

	cap := bps.Apply(loanPrincipal, f.coverageBps)

	f.mu.Lock()
	covered := lossAmount
	if cap < covered {
		covered = cap
	}
	if f.balance < covered {
		covered = f.balance
	}
	f.balance -= covered
	f.totalCovered += covered
	balance := f.balance
	f.mu.Unlock()

	f.metrics.SetBalance(balance)
	f.metrics.AddCovered(covered)
	f.log(ctx, "insurance loss covered",
		"principal", loanPrincipal,
		"loss", lossAmount,
		"cap", cap,
		"covered", covered,
		"balance", balance,
	)
	return covered, nil
}

// Snapshot returns the current fund state.
func (f *Fund) Snapshot(context.Context) Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		Balance:        f.balance,
		TotalCovered:   f.totalCovered,
		TotalAllocated: f.totalAllocated,
	}
}

func (f *Fund) log(ctx context.Context, msg string, args ...any) {
	if f.logger != nil {
		f.logger.InfoContext(ctx, msg, args...)
	}
}
