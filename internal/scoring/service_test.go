package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustline/internal/ledger"
	dErrors "trustline/pkg/domain-errors"
)

type stubReader struct {
	agg *ledger.AggregateCreditData
	err error
}

func (r *stubReader) GetAggregate(_ context.Context, subject ledger.Subject) (*ledger.AggregateCreditData, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.agg != nil {
		return r.agg, nil
	}
	agg := &ledger.AggregateCreditData{Subject: subject}
	agg.CollateralAssets = map[string]uint64{}
	agg.CrossSourceScores = map[string]float64{}
	return agg, nil
}

type stubFeed struct {
	scores map[string]float64
	err    error
	calls  int
}

func (f *stubFeed) Scores(context.Context, ledger.Subject) (map[string]float64, error) {
	f.calls++
	return f.scores, f.err
}

func newScoringService(t *testing.T, reader AggregateReader, opts ...Option) *Service {
	t.Helper()
	engine, err := NewEngine()
	require.NoError(t, err)
	opts = append(opts, WithClock(func() time.Time { return testNow }))
	return New(engine, reader, opts...)
}

func TestComputeScoreEmptySubject(t *testing.T) {
	s := newScoringService(t, &stubReader{})
	_, err := s.ComputeScore(context.Background(), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestComputeScoreFreshSubject(t *testing.T) {
	s := newScoringService(t, &stubReader{})

	card, err := s.ComputeScore(context.Background(), "alice")
	require.NoError(t, err)

	// Neutral repayment, collateral and reputation; zero trust and
	// participation: 50*0.4 + 50*0.2 + 0*0.2 + 50*0.1 + 0*0.1 = 35.
	assert.Equal(t, float64(35), card.Overall)
	assert.Equal(t, TierBronze, card.Terms.Tier)
	assert.Equal(t, testNow, card.ComputedAt)
}

func TestComputeScoreReaderFailure(t *testing.T) {
	s := newScoringService(t, &stubReader{err: errors.New("store down")})
	_, err := s.ComputeScore(context.Background(), "alice")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestComputeScoreMergesFeedScores(t *testing.T) {
	agg := &ledger.AggregateCreditData{
		Subject:           "alice",
		CollateralAssets:  map[string]uint64{},
		CrossSourceScores: map[string]float64{"lenderdao": 40},
	}
	feed := &stubFeed{scores: map[string]float64{"lenderdao": 90, "chainrep": 80}}
	s := newScoringService(t, &stubReader{agg: agg}, WithFeed(feed))

	card, err := s.ComputeScore(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, feed.calls)

	// Feed overrides lenderdao and adds chainrep: avg(90, 80)=85 plus one
	// extra-source bonus of 2.
	assert.Equal(t, float64(87), card.Factors.Reputation)
}

func TestComputeScoreFeedFailureIsBestEffort(t *testing.T) {
	agg := &ledger.AggregateCreditData{
		Subject:           "alice",
		CollateralAssets:  map[string]uint64{},
		CrossSourceScores: map[string]float64{"lenderdao": 60},
	}
	feed := &stubFeed{err: errors.New("feed down")}
	s := newScoringService(t, &stubReader{agg: agg}, WithFeed(feed))

	card, err := s.ComputeScore(context.Background(), "alice")
	require.NoError(t, err, "feed failure must not fail scoring")
	assert.Equal(t, float64(60), card.Factors.Reputation, "falls back to stored scores")
}

func TestComputeScoreIgnoresOutOfRangeFeedScores(t *testing.T) {
	feed := &stubFeed{scores: map[string]float64{"bad": 140, "": 50, "good": 70}}
	s := newScoringService(t, &stubReader{}, WithFeed(feed))

	card, err := s.ComputeScore(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(70), card.Factors.Reputation)
}
