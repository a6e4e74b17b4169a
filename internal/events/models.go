package events

import (
	"time"

	"github.com/google/uuid"

	"trustline/internal/ledger"
)

// Type names a loan lifecycle event.
type Type string

const (
	TypeLoanOpened       Type = "loan_opened"
	TypeLoanRepayment    Type = "loan_repayment"
	TypeLoanRepaid       Type = "loan_repaid"
	TypeLoanLiquidated   Type = "loan_liquidated"
	TypeAuctionStarted   Type = "auction_started"
	TypeAuctionExecuted  Type = "auction_executed"
	TypeAuctionCancelled Type = "auction_cancelled"
	TypeLossCovered      Type = "loss_covered"
)

// Event is emitted from domain logic to capture lifecycle transitions. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       Type           `json:"type"`
	Subject    ledger.Subject `json:"subject,omitempty"`
	LoanID     uuid.UUID      `json:"loan_id,omitempty"`
	AuctionID  uuid.UUID      `json:"auction_id,omitempty"`
	Amount     int64          `json:"amount,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
