package scoring

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"trustline/internal/ledger"
	"trustline/internal/platform/middleware"
	"trustline/internal/scoring/metrics"
	dErrors "trustline/pkg/domain-errors"
)

const feedTimeout = 2 * time.Second

// AggregateReader is the slice of the ledger the scorer needs.
type AggregateReader interface {
	GetAggregate(ctx context.Context, subject ledger.Subject) (*ledger.AggregateCreditData, error)
}

// ReputationFeed supplies external reputation scores, keyed by source, on the
// 0-100 scale. Implementations live outside this module.
type ReputationFeed interface {
	Scores(ctx context.Context, subject ledger.Subject) (map[string]float64, error)
}

// Service computes scorecards from ledger aggregates, optionally refreshed
// with live reputation feed data and cached in Redis.
type Service struct {
	engine  *Engine
	ledger  AggregateReader
	feed    ReputationFeed
	cache   *Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
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

// WithFeed attaches a reputation feed. Feed failures never fail a score;
// computation falls back to the scores already in the ledger.
func WithFeed(feed ReputationFeed) Option {
	return func(s *Service) { s.feed = feed }
}

// WithCache attaches a scorecard cache.
func WithCache(cache *Cache) Option {
	return func(s *Service) { s.cache = cache }
}

// New constructs the scoring service.
func New(engine *Engine, reader AggregateReader, opts ...Option) *Service {
	s := &Service{
		engine: engine,
		ledger: reader,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeScore returns the subject's current scorecard. The ledger aggregate
// and the reputation feed are read in parallel; feed scores override the
// stored cross-source scores for this computation only.
func (s *Service) ComputeScore(ctx context.Context, subject ledger.Subject) (*Scorecard, error) {
	if subject == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "subject must not be empty")
	}

	if card, err := s.cache.Get(ctx, subject); err != nil {
		s.log(ctx, slog.LevelWarn, "scorecard cache read failed", "subject", subject, "error", err)
	} else if card != nil {
		s.metrics.IncCacheLookup("hit")
		return card, nil
	}
	s.metrics.IncCacheLookup("miss")

	start := s.clock()

	var (
		agg        *ledger.AggregateCreditData
		feedScores map[string]float64
	)

	gctx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(gctx)

	g.Go(func() error {
		var err error
		agg, err = s.ledger.GetAggregate(gctx, subject)
		return err
	})

	if s.feed != nil {
		g.Go(func() error {
			scores, err := s.feed.Scores(gctx, subject)
			if err != nil {
				// Feed data is advisory. Score from ledger state alone.
				s.metrics.IncFeedFailures()
				s.log(gctx, slog.LevelWarn, "reputation feed unavailable", "subject", subject, "error", err)
				return nil
			}
			feedScores = scores
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read aggregate credit data")
	}

	for source, score := range feedScores {
		if source != "" && score >= 0 && score <= 100 {
			agg.CrossSourceScores[source] = score
		}
	}

	card := s.engine.Score(agg, s.clock())

	s.metrics.ObserveScoreLatency(s.clock().Sub(start))
	s.metrics.IncScoresComputed(string(card.Terms.Tier))
	s.metrics.ObserveOverallScore(card.Overall)

	if err := s.cache.Set(ctx, &card); err != nil {
		s.log(ctx, slog.LevelWarn, "scorecard cache write failed", "subject", subject, "error", err)
	}

	s.log(ctx, slog.LevelInfo, "scorecard computed",
		"subject", subject,
		"overall", card.Overall,
		"tier", card.Terms.Tier,
	)
	return &card, nil
}

func (s *Service) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.Log(ctx, level, msg, args...)
}
