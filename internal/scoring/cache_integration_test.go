//go:build integration

package scoring_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustline/internal/ledger"
	platformredis "trustline/internal/platform/redis"
	"trustline/internal/scoring"
	"trustline/pkg/testutil/containers"
)

type CacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *scoring.Cache
}

func TestCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.cache = scoring.NewCache(&platformredis.Client{Client: s.redis.Client}, time.Minute)
}

func (s *CacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *CacheSuite) TestMissThenHit() {
	ctx := context.Background()

	card, err := s.cache.Get(ctx, "alice")
	s.Require().NoError(err)
	s.Nil(card, "empty cache misses")

	want := &scoring.Scorecard{
		Subject: "alice",
		Overall: 72,
		Terms: scoring.TermSheet{
			Tier:        scoring.TierGold,
			MaxLtvBps:   6_500,
			AprBps:      700,
			GracePeriod: 24 * time.Hour,
		},
		ComputedAt: time.Now().UTC().Truncate(time.Second),
	}
	s.Require().NoError(s.cache.Set(ctx, want))

	got, err := s.cache.Get(ctx, "alice")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(want.Overall, got.Overall)
	s.Equal(want.Terms, got.Terms)
}

func (s *CacheSuite) TestInvalidate() {
	ctx := context.Background()

	card := &scoring.Scorecard{Subject: ledger.Subject("bob"), Overall: 40}
	s.Require().NoError(s.cache.Set(ctx, card))
	s.Require().NoError(s.cache.Invalidate(ctx, "bob"))

	got, err := s.cache.Get(ctx, "bob")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *CacheSuite) TestExpiry() {
	ctx := context.Background()

	short := scoring.NewCache(&platformredis.Client{Client: s.redis.Client}, 50*time.Millisecond)
	s.Require().NoError(short.Set(ctx, &scoring.Scorecard{Subject: "carol", Overall: 60}))

	time.Sleep(100 * time.Millisecond)

	got, err := short.Get(ctx, "carol")
	s.Require().NoError(err)
	s.Nil(got, "entries expire after the TTL")
}
