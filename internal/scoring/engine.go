package scoring

import (
	"time"

	"trustline/internal/ledger"
	dErrors "trustline/pkg/domain-errors"
)

// Weights are the percentage contributions of the five factors to the overall
// score. They must sum to 100.
type Weights struct {
	Repayment     uint64
	Collateral    uint64
	Trust         uint64
	Reputation    uint64
	Participation uint64
}

// DefaultWeights is the standard 40/20/20/10/10 split.
var DefaultWeights = Weights{
	Repayment:     40,
	Collateral:    20,
	Trust:         20,
	Reputation:    10,
	Participation: 10,
}

func (w Weights) sum() uint64 {
	return w.Repayment + w.Collateral + w.Trust + w.Reputation + w.Participation
}

const (
	// neutralScore is used for factors with no history to judge.
	neutralScore = 50

	// S1: each liquidation costs this many points off the repayment rate.
	liquidationPenalty = 20

	// S2 collateralization bands, in percent of borrowed value.
	maxLtvRatioThreshold = 0.5
	maxLtvRatioPenalty   = 20
	assetDiversityBonus  = 5
	assetDiversityCap    = 15

	// S3 components. KYC and wallet age and stake sum to at most 100.
	kycBonus           = 40
	walletAgeMaxBonus  = 30
	walletAgeHorizon   = 365 * 24 * time.Hour
	stakeMaxBonus      = 30
	stakeBandLarge     = 1_000_000
	stakeBandMedium    = 100_000
	stakeBandSmall     = 10_000
	stakeBonusMedium   = 20
	stakeBonusSmall    = 10

	// S4: bonus per distinct source beyond the first.
	sourceBonus    = 2
	sourceBonusCap = 5

	// S5 components.
	voteBonus        = 2
	voteBonusCap     = 40
	proposalBonus    = 5
	proposalBonusCap = 30
	recencyBonus     = 30
	recencyWindow    = 30 * 24 * time.Hour
)

// Engine computes scorecards. Score is a pure function of the aggregate and
// the clock reading passed in; the engine itself carries only configuration.
type Engine struct {
	weights Weights
	tiers   []TierBand
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithWeights overrides the factor weights.
func WithWeights(w Weights) EngineOption {
	return func(e *Engine) { e.weights = w }
}

// WithTiers overrides the tier band table.
func WithTiers(bands []TierBand) EngineOption {
	return func(e *Engine) { e.tiers = bands }
}

// NewEngine builds an Engine, validating weights and the tier table.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		weights: DefaultWeights,
		tiers:   DefaultTiers,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.weights.sum() != 100 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "factor weights must sum to 100, got %d", e.weights.sum())
	}
	if err := validateTiers(e.tiers); err != nil {
		return nil, err
	}
	return e, nil
}

// Score computes the subject's scorecard from its aggregate. It never
// mutates the aggregate and never looks at per-loan history.
func (e *Engine) Score(agg *ledger.AggregateCreditData, now time.Time) Scorecard {
	factors := Factors{
		Repayment:     repaymentScore(agg),
		Collateral:    collateralScore(agg),
		Trust:         trustScore(agg, now),
		Reputation:    reputationScore(agg),
		Participation: participationScore(agg, now),
	}

	overall := (factors.Repayment*float64(e.weights.Repayment) +
		factors.Collateral*float64(e.weights.Collateral) +
		factors.Trust*float64(e.weights.Trust) +
		factors.Reputation*float64(e.weights.Reputation) +
		factors.Participation*float64(e.weights.Participation)) / 100

	overall = clamp(overall)

	return Scorecard{
		Subject:    agg.Subject,
		Factors:    factors,
		Overall:    overall,
		Terms:      termsFor(e.tiers, overall),
		ComputedAt: now,
	}
}

// repaymentScore (S1) scores repayment history. Subjects with no loans get a
// neutral score; each liquidation knocks a fixed penalty off the rate.
func repaymentScore(agg *ledger.AggregateCreditData) float64 {
	if agg.TotalLoans == 0 {
		return neutralScore
	}
	rate := float64(agg.RepaidLoans) / float64(agg.TotalLoans) * 100
	return clamp(rate - float64(agg.LiquidatedLoans)*liquidationPenalty)
}

// collateralScore (S2) scores collateral discipline: how overcollateralized
// the subject borrows, whether it rides the LTV ceiling, and how diverse its
// collateral is.
func collateralScore(agg *ledger.AggregateCreditData) float64 {
	if agg.TotalBorrowedValue == 0 {
		return neutralScore
	}

	ratio := float64(agg.TotalCollateralValue) / float64(agg.TotalBorrowedValue) * 100
	var score float64
	switch {
	case ratio >= 200:
		score = 100
	case ratio >= 150:
		score = 75
	case ratio >= 120:
		score = 50
	case ratio >= 100:
		score = 25
	}

	if agg.TotalLoans > 0 {
		if float64(agg.MaxLtvBorrowCount)/float64(agg.TotalLoans) > maxLtvRatioThreshold {
			score -= maxLtvRatioPenalty
		}
	}

	if n := len(agg.CollateralAssets); n > 1 {
		bonus := float64(n-1) * assetDiversityBonus
		if bonus > assetDiversityCap {
			bonus = assetDiversityCap
		}
		score += bonus
	}

	return clamp(score)
}

// trustScore (S3) scores sybil resistance. A valid KYC proof is a bonus only,
// never a penalty when absent. Wallet age earns up to its cap linearly over
// the horizon, and stake earns a banded bonus.
func trustScore(agg *ledger.AggregateCreditData, now time.Time) float64 {
	var score float64

	if agg.KYC.Valid(now) {
		score += kycBonus
	}

	if !agg.FirstSeen.IsZero() {
		age := now.Sub(agg.FirstSeen)
		if age > walletAgeHorizon {
			age = walletAgeHorizon
		}
		if age > 0 {
			score += walletAgeMaxBonus * float64(age) / float64(walletAgeHorizon)
		}
	}

	switch {
	case agg.Stake.Amount >= stakeBandLarge:
		score += stakeMaxBonus
	case agg.Stake.Amount >= stakeBandMedium:
		score += stakeBonusMedium
	case agg.Stake.Amount >= stakeBandSmall:
		score += stakeBonusSmall
	}

	return clamp(score)
}

// reputationScore (S4) averages cross-source scores with a small,
// capped bonus for source diversity. No sources means a neutral score.
func reputationScore(agg *ledger.AggregateCreditData) float64 {
	n := len(agg.CrossSourceScores)
	if n == 0 {
		return neutralScore
	}

	var sum float64
	for _, s := range agg.CrossSourceScores {
		sum += s
	}
	avg := sum / float64(n)

	extra := n - 1
	if extra > sourceBonusCap {
		extra = sourceBonusCap
	}
	return clamp(avg + float64(extra)*sourceBonus)
}

// participationScore (S5) rewards governance activity with capped vote and
// proposal bonuses plus a recency bonus.
func participationScore(agg *ledger.AggregateCreditData, now time.Time) float64 {
	votes := float64(agg.Governance.VoteCount) * voteBonus
	if votes > voteBonusCap {
		votes = voteBonusCap
	}
	proposals := float64(agg.Governance.ProposalCount) * proposalBonus
	if proposals > proposalBonusCap {
		proposals = proposalBonusCap
	}

	score := votes + proposals
	if !agg.Governance.LastActivityAt.IsZero() && now.Sub(agg.Governance.LastActivityAt) <= recencyWindow {
		score += recencyBonus
	}
	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
