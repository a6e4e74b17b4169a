package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the liquidation module.
type Metrics struct {
	AuctionsStarted   prometheus.Counter
	AuctionsExecuted  prometheus.Counter
	AuctionsCancelled prometheus.Counter
	StartRejected     *prometheus.CounterVec
	DiscountAtExec    prometheus.Histogram
	ShortfallCovered  prometheus.Counter
	SurplusReturned   prometheus.Counter
}

// New creates a Metrics instance with all liquidation metrics registered.
func New() *Metrics {
	return &Metrics{
		AuctionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_liquidation_auctions_started_total",
			Help: "Liquidation auctions opened",
		}),
		AuctionsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_liquidation_auctions_executed_total",
			Help: "Auctions executed",
		}),
		AuctionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_liquidation_auctions_cancelled_total",
			Help: "Auctions cancelled after health recovery",
		}),
		StartRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_liquidation_start_rejected_total",
			Help: "Liquidation attempts rejected, by reason",
		}, []string{"reason"}), // reason: "healthy", "health", "score", "open_auction", "store"
		DiscountAtExec: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustline_liquidation_discount_at_execution_bps",
			Help:    "Discount applied at auction execution, in basis points",
			Buckets: prometheus.LinearBuckets(0, 250, 9),
		}),
		ShortfallCovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_liquidation_shortfall_covered_usd_cents_total",
			Help: "Cumulative shortfall covered by the insurance fund",
		}),
		SurplusReturned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_liquidation_surplus_returned_usd_cents_total",
			Help: "Cumulative surplus owed back to borrowers",
		}),
	}
}

// IncStarted records an opened auction.
func (m *Metrics) IncStarted() {
	if m != nil {
		m.AuctionsStarted.Inc()
	}
}

// IncExecuted records an executed auction.
func (m *Metrics) IncExecuted() {
	if m != nil {
		m.AuctionsExecuted.Inc()
	}
}

// IncCancelled records a cancelled auction.
func (m *Metrics) IncCancelled() {
	if m != nil {
		m.AuctionsCancelled.Inc()
	}
}

// IncStartRejected records a rejected liquidation attempt.
func (m *Metrics) IncStartRejected(reason string) {
	if m != nil {
		m.StartRejected.WithLabelValues(reason).Inc()
	}
}

// ObserveDiscount records the discount an auction settled at.
func (m *Metrics) ObserveDiscount(bps uint64) {
	if m != nil {
		m.DiscountAtExec.Observe(float64(bps))
	}
}

// AddShortfallCovered records insurance coverage paid out.
func (m *Metrics) AddShortfallCovered(amount int64) {
	if m != nil {
		m.ShortfallCovered.Add(float64(amount))
	}
}

// AddSurplusReturned records surplus owed back to a borrower.
func (m *Metrics) AddSurplusReturned(amount int64) {
	if m != nil {
		m.SurplusReturned.Add(float64(amount))
	}
}
