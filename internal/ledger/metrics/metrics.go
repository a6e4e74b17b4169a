package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger module.
type Metrics struct {
	LoansRegistered prometheus.Counter
	LoansClosed     *prometheus.CounterVec
	StakeOps        *prometheus.CounterVec
	KYCSubmissions  prometheus.Counter
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		LoansRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_ledger_loans_registered_total",
			Help: "Total loans registered in the ledger",
		}),
		LoansClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_ledger_loans_closed_total",
			Help: "Total loans reaching a terminal status",
		}, []string{"status"}), // status: "repaid", "liquidated"
		StakeOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustline_ledger_stake_operations_total",
			Help: "Total stake and unstake operations",
		}, []string{"op"}),
		KYCSubmissions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustline_ledger_kyc_submissions_total",
			Help: "Total KYC proofs submitted",
		}),
	}
}

// IncLoansRegistered records a new loan.
func (m *Metrics) IncLoansRegistered() {
	if m != nil {
		m.LoansRegistered.Inc()
	}
}

// IncLoansClosed records a terminal transition.
func (m *Metrics) IncLoansClosed(status string) {
	if m != nil {
		m.LoansClosed.WithLabelValues(status).Inc()
	}
}

// IncStakeOp records a stake or unstake.
func (m *Metrics) IncStakeOp(op string) {
	if m != nil {
		m.StakeOps.WithLabelValues(op).Inc()
	}
}

// IncKYCSubmissions records a KYC proof submission.
func (m *Metrics) IncKYCSubmissions() {
	if m != nil {
		m.KYCSubmissions.Inc()
	}
}
