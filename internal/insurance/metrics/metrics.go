package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the insurance fund.
type Metrics struct {
	Balance   prometheus.Gauge
	Covered   prometheus.Counter
	Allocated prometheus.Counter
}

// New creates a Metrics instance with all insurance metrics registered.
func New() *Metrics {
	return &Metrics{
		Balance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "trustline_insurance_balance_cents",
			Help: "Current insurance pool balance",
		}),
		Covered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_insurance_covered_cents_total",
			Help: "Cumulative losses covered by the pool",
		}),
		Allocated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_insurance_allocated_cents_total",
			Help: "Cumulative revenue allocated into the pool",
		}),
	}
}

// SetBalance records the pool balance.
func (m *Metrics) SetBalance(balance int64) {
	if m != nil {
		m.Balance.Set(float64(balance))
	}
}

// AddCovered records covered losses.
func (m *Metrics) AddCovered(amount int64) {
	if m != nil {
		m.Covered.Add(float64(amount))
	}
}

// AddAllocated records allocated revenue.
func (m *Metrics) AddAllocated(amount int64) {
	if m != nil {
		m.Allocated.Add(float64(amount))
	}
}
