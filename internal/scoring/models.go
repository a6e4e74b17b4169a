package scoring

import (
	"time"

	"trustline/internal/ledger"
)

// Tier is a credit band with fixed loan terms.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// TermSheet is the loan-term tuple a tier grants.
type TermSheet struct {
	Tier        Tier          `json:"tier"`
	MaxLtvBps   uint64        `json:"max_ltv_bps"`
	AprBps      uint64        `json:"apr_bps"`
	GracePeriod time.Duration `json:"grace_period"`
}

// Factors holds the five component scores, each in [0, 100].
type Factors struct {
	Repayment     float64 `json:"repayment"`
	Collateral    float64 `json:"collateral"`
	Trust         float64 `json:"trust"`
	Reputation    float64 `json:"reputation"`
	Participation float64 `json:"participation"`
}

// Scorecard is the full scoring output for a subject at a point in time.
type Scorecard struct {
	Subject    ledger.Subject `json:"subject"`
	Factors    Factors        `json:"factors"`
	Overall    float64        `json:"overall"`
	Terms      TermSheet      `json:"terms"`
	ComputedAt time.Time      `json:"computed_at"`
}
