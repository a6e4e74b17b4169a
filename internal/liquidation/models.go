package liquidation

import (
	"time"

	"github.com/google/uuid"

	"trustline/internal/ledger"
)

// AuctionStatus is the lifecycle state of a liquidation auction. Pending is
// the only non-terminal state.
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionExecuted  AuctionStatus = "executed"
	AuctionCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionExecuted || s == AuctionCancelled
}

// Auction tracks one liquidation attempt on a loan. The discount it offers
// is never stored while pending; it is recomputed from timestamps on every
// read, so there are no background timers to drift or cancel.
type Auction struct {
	ID         uuid.UUID
	LoanID     uuid.UUID
	Subject    ledger.Subject
	StartedAt  time.Time
	GraceEndAt time.Time

	// Ramp parameters are frozen at auction start so a config change never
	// reshapes a running auction.
	MaxDiscountBps uint64
	RampDuration   time.Duration

	Status   AuctionStatus
	ClosedAt *time.Time

	// Execution outcome, zero until Executed.
	FinalDiscountBps uint64
	Payout           int64
	Covered          int64
	Surplus          int64
}
