package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the scoring module.
type Metrics struct {
	ScoresComputed  *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	ScoreLatency    prometheus.Histogram
	FeedFailures    prometheus.Counter
	OverallScore    prometheus.Histogram
}

// New creates a Metrics instance with all scoring metrics registered.
func New() *Metrics {
	return &Metrics{
		ScoresComputed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_scoring_scores_computed_total",
			Help: "Total scorecards computed, by resulting tier",
		}, []string{"tier"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_scoring_cache_lookups_total",
			Help: "Scorecard cache lookups",
		}, []string{"result"}), // result: "hit", "miss"
		ScoreLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustline_scoring_compute_duration_seconds",
			Help:    "Time to compute a scorecard, aggregate read included",
			Buckets: prometheus.DefBuckets,
		}),
		FeedFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_scoring_feed_failures_total",
			Help: "Reputation feed refreshes that failed and were skipped",
		}),
		OverallScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustline_scoring_overall_score",
			Help:    "Distribution of computed overall scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

// IncScoresComputed records a computed scorecard.
func (m *Metrics) IncScoresComputed(tier string) {
	if m != nil {
		m.ScoresComputed.WithLabelValues(tier).Inc()
	}
}

// IncCacheLookup records a cache hit or miss.
func (m *Metrics) IncCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// ObserveScoreLatency records how long a computation took.
func (m *Metrics) ObserveScoreLatency(d time.Duration) {
	if m != nil {
		m.ScoreLatency.Observe(d.Seconds())
	}
}

// IncFeedFailures records a skipped reputation feed refresh.
func (m *Metrics) IncFeedFailures() {
	if m != nil {
		m.FeedFailures.Inc()
	}
}

// ObserveOverallScore records a computed overall score.
func (m *Metrics) ObserveOverallScore(score float64) {
	if m != nil {
		m.OverallScore.Observe(score)
	}
}
