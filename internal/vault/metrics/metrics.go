package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the vault module.
type Metrics struct {
	Borrows        *prometheus.CounterVec
	BorrowRejected *prometheus.CounterVec
	Repayments     prometheus.Counter
	BorrowLatency  prometheus.Histogram
	HealthReadings prometheus.Histogram
}

// New creates a Metrics instance with all vault metrics registered.
func New() *Metrics {
	return &Metrics{
		Borrows: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_vault_borrows_total",
			Help: "Loans opened, by granted tier",
		}, []string{"tier"}),
		BorrowRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_vault_borrows_rejected_total",
			Help: "Borrow requests rejected, by reason",
		}, []string{"reason"}), // reason: "validation", "ltv", "oracle", "custody"
		Repayments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_vault_repayments_total",
			Help: "Repayments applied",
		}),
		BorrowLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustline_vault_borrow_duration_seconds",
			Help:    "End-to-end borrow latency, external calls included",
			Buckets: prometheus.DefBuckets,
		}),
		HealthReadings: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustline_vault_health_factor",
			Help:    "Distribution of health factor readings",
			Buckets: []float64{0.5, 0.8, 0.9, 0.95, 1, 1.1, 1.25, 1.5, 2, 3},
		}),
	}
}

// IncBorrows records an opened loan.
func (m *Metrics) IncBorrows(tier string) {
	if m != nil {
		m.Borrows.WithLabelValues(tier).Inc()
	}
}

// IncBorrowRejected records a rejected borrow.
func (m *Metrics) IncBorrowRejected(reason string) {
	if m != nil {
		m.BorrowRejected.WithLabelValues(reason).Inc()
	}
}

// IncRepayments records an applied repayment.
func (m *Metrics) IncRepayments() {
	if m != nil {
		m.Repayments.Inc()
	}
}

// ObserveBorrowLatency records a borrow duration.
func (m *Metrics) ObserveBorrowLatency(d time.Duration) {
	if m != nil {
		m.BorrowLatency.Observe(d.Seconds())
	}
}

// ObserveHealthFactor records a health factor reading. Infinite readings
// (zero debt) are skipped.
func (m *Metrics) ObserveHealthFactor(hf float64) {
	if m != nil && hf < 1e9 {
		m.HealthReadings.Observe(hf)
	}
}
