package ledger

import (
	"time"

	"github.com/google/uuid"

	"trustline/pkg/bps"
)

// Subject identifies a pseudonymous borrower. The service treats it as an
// opaque key (an address or public key supplied by the caller).
type Subject string

// LoanStatus is the lifecycle state of a loan. Active is the only
// non-terminal state; once a loan is Repaid or Liquidated it never changes
// again.
type LoanStatus string

const (
	LoanActive     LoanStatus = "active"
	LoanRepaid     LoanStatus = "repaid"
	LoanLiquidated LoanStatus = "liquidated"
)

// Terminal reports whether the status permits no further transitions.
func (s LoanStatus) Terminal() bool {
	return s == LoanRepaid || s == LoanLiquidated
}

// LoanRecord is the canonical per-loan state. Amounts are USD cents.
type LoanRecord struct {
	ID               uuid.UUID
	Subject          Subject
	Principal        int64
	RepaidAmount     int64
	CollateralAmount int64
	CollateralAsset  string
	CollateralValue  int64
	LtvAtOpen        uint64
	AprBps           uint64
	OpenedAt         time.Time
	ClosedAt         *time.Time
	Status           LoanStatus
}

// DebtAt returns the loan's outstanding debt at the given instant: principal
// plus simple interest accrued since open, less what has been repaid.
// Terminal loans owe nothing.
func (l *LoanRecord) DebtAt(now time.Time) int64 {
	if l.Status.Terminal() {
		return 0
	}
	debt := l.Principal + bps.SimpleInterest(l.Principal, l.AprBps, now.Sub(l.OpenedAt)) - l.RepaidAmount
	if debt < 0 {
		return 0
	}
	return debt
}

// KYCProof records the latest identity proof submitted for a subject.
type KYCProof struct {
	Verified  bool
	ProofHash string
	ExpiresAt time.Time
}

// Valid reports whether the proof is usable at the given instant.
func (p KYCProof) Valid(now time.Time) bool {
	return p.Verified && p.ExpiresAt.After(now)
}

// StakePosition tracks the subject's protocol stake.
type StakePosition struct {
	Amount int64
	Since  time.Time
}

// GovernanceActivity tracks participation counters.
type GovernanceActivity struct {
	VoteCount      uint64
	ProposalCount  uint64
	LastActivityAt time.Time
}

// AggregateCreditData is the O(1)-readable per-subject summary that replaces
// per-loan iteration. Lazily created on first interaction, never deleted.
//
// Invariant: TotalLoans == RepaidLoans + LiquidatedLoans + ActiveLoans.
type AggregateCreditData struct {
	Subject              Subject
	TotalLoans           uint64
	RepaidLoans          uint64
	LiquidatedLoans      uint64
	ActiveLoans          uint64
	TotalCollateralValue int64
	TotalBorrowedValue   int64
	MaxLtvBorrowCount    uint64
	// CollateralAssets counts borrows per asset; len() is the distinct asset
	// count the scorer uses.
	CollateralAssets map[string]uint64
	FirstSeen        time.Time
	KYC              KYCProof
	Stake            StakePosition
	Governance       GovernanceActivity
	// CrossSourceScores holds the latest external reputation score per
	// source, each on the 0-100 scale.
	CrossSourceScores map[string]float64
}

// Clone returns a deep copy so callers never alias store-owned maps.
func (a *AggregateCreditData) Clone() *AggregateCreditData {
	if a == nil {
		return nil
	}
	out := *a
	out.CollateralAssets = make(map[string]uint64, len(a.CollateralAssets))
	for k, v := range a.CollateralAssets {
		out.CollateralAssets[k] = v
	}
	out.CrossSourceScores = make(map[string]float64, len(a.CrossSourceScores))
	for k, v := range a.CrossSourceScores {
		out.CrossSourceScores[k] = v
	}
	return &out
}

func (a *AggregateCreditData) ensureMaps() {
	if a.CollateralAssets == nil {
		a.CollateralAssets = make(map[string]uint64)
	}
	if a.CrossSourceScores == nil {
		a.CrossSourceScores = make(map[string]float64)
	}
}
