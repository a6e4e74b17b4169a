package scoring

import (
	"time"

	dErrors "trustline/pkg/domain-errors"
)

// TierBand maps a minimum overall score to a tier and its terms. Bands are
// ordered by descending MinScore and looked up first-match; this table is the
// only place tier dispatch happens.
type TierBand struct {
	MinScore float64
	Terms    TermSheet
}

// DefaultTiers is the standard four-band table.
var DefaultTiers = []TierBand{
	{MinScore: 85, Terms: TermSheet{Tier: TierPlatinum, MaxLtvBps: 8_000, AprBps: 400, GracePeriod: 48 * time.Hour}},
	{MinScore: 70, Terms: TermSheet{Tier: TierGold, MaxLtvBps: 6_500, AprBps: 700, GracePeriod: 24 * time.Hour}},
	{MinScore: 50, Terms: TermSheet{Tier: TierSilver, MaxLtvBps: 5_000, AprBps: 1_000, GracePeriod: 12 * time.Hour}},
	{MinScore: 0, Terms: TermSheet{Tier: TierBronze, MaxLtvBps: 3_000, AprBps: 1_500, GracePeriod: 0}},
}

func validateTiers(bands []TierBand) error {
	if len(bands) == 0 {
		return dErrors.New(dErrors.CodeValidation, "tier table must not be empty")
	}
	for i := 1; i < len(bands); i++ {
		if bands[i].MinScore >= bands[i-1].MinScore {
			return dErrors.New(dErrors.CodeValidation, "tier bands must be ordered by strictly descending min score")
		}
	}
	if bands[len(bands)-1].MinScore != 0 {
		return dErrors.New(dErrors.CodeValidation, "lowest tier band must start at score 0")
	}
	return nil
}

// termsFor resolves an overall score to the first band it clears.
func termsFor(bands []TierBand, overall float64) TermSheet {
	for _, band := range bands {
		if overall >= band.MinScore {
			return band.Terms
		}
	}
	return bands[len(bands)-1].Terms
}
