// Package handler exposes the ledger's subject endpoints: identity proofs,
// staking, governance counters, external reputation and the raw aggregate.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"trustline/internal/ledger"
	"trustline/internal/platform/middleware"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/httputil"
)

// Service is the ledger surface the handler drives.
type Service interface {
	SubmitKYCProof(ctx context.Context, subject ledger.Subject, proofHash string, expiresAt time.Time) error
	Stake(ctx context.Context, subject ledger.Subject, amount int64) error
	Unstake(ctx context.Context, subject ledger.Subject, amount int64) error
	RecordVote(ctx context.Context, subject ledger.Subject) error
	RecordProposal(ctx context.Context, subject ledger.Subject) error
	RecordCrossSourceScore(ctx context.Context, subject ledger.Subject, source string, score float64) error
	GetAggregate(ctx context.Context, subject ledger.Subject) (*ledger.AggregateCreditData, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts subject endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/subjects/{subject}/kyc", h.HandleKYC)
	r.Post("/subjects/{subject}/stake", h.HandleStake)
	r.Post("/subjects/{subject}/unstake", h.HandleUnstake)
	r.Post("/subjects/{subject}/votes", h.HandleVote)
	r.Post("/subjects/{subject}/proposals", h.HandleProposal)
	r.Post("/subjects/{subject}/reputation", h.HandleReputation)
	r.Get("/subjects/{subject}/credit", h.HandleCredit)
}

// KYCRequest submits an identity proof.
type KYCRequest struct {
	ProofHash string    `json:"proof_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *KYCRequest) Validate() error {
	r.ProofHash = strings.TrimSpace(r.ProofHash)
	if r.ProofHash == "" {
		return dErrors.New(dErrors.CodeValidation, "proof_hash is required")
	}
	if r.ExpiresAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "expires_at is required")
	}
	return nil
}

// StakeRequest adds or removes protocol stake.
type StakeRequest struct {
	Amount int64 `json:"amount"`
}

func (r *StakeRequest) Validate() error {
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}

// ReputationRequest records an external reputation score.
type ReputationRequest struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

func (r *ReputationRequest) Validate() error {
	r.Source = strings.TrimSpace(r.Source)
	if r.Source == "" {
		return dErrors.New(dErrors.CodeValidation, "source is required")
	}
	if r.Score < 0 || r.Score > 100 {
		return dErrors.New(dErrors.CodeValidation, "score must be between 0 and 100")
	}
	return nil
}

// HandleKYC handles POST /subjects/{subject}/kyc requests.
func (h *Handler) HandleKYC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, ok := parseSubject(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[KYCRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SubmitKYCProof(ctx, subject, req.ProofHash, req.ExpiresAt); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStake handles POST /subjects/{subject}/stake requests.
func (h *Handler) HandleStake(w http.ResponseWriter, r *http.Request) {
	h.handleStakeChange(w, r, h.service.Stake)
}

// HandleUnstake handles POST /subjects/{subject}/unstake requests.
func (h *Handler) HandleUnstake(w http.ResponseWriter, r *http.Request) {
	h.handleStakeChange(w, r, h.service.Unstake)
}

func (h *Handler) handleStakeChange(w http.ResponseWriter, r *http.Request, apply func(context.Context, ledger.Subject, int64) error) {
	ctx := r.Context()
	subject, ok := parseSubject(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[StakeRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := apply(ctx, subject, req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVote handles POST /subjects/{subject}/votes requests.
func (h *Handler) HandleVote(w http.ResponseWriter, r *http.Request) {
	h.handleGovernance(w, r, h.service.RecordVote)
}

// HandleProposal handles POST /subjects/{subject}/proposals requests.
func (h *Handler) HandleProposal(w http.ResponseWriter, r *http.Request) {
	h.handleGovernance(w, r, h.service.RecordProposal)
}

func (h *Handler) handleGovernance(w http.ResponseWriter, r *http.Request, record func(context.Context, ledger.Subject) error) {
	subject, ok := parseSubject(w, r)
	if !ok {
		return
	}
	if err := record(r.Context(), subject); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReputation handles POST /subjects/{subject}/reputation requests.
func (h *Handler) HandleReputation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, ok := parseSubject(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReputationRequest](w, r, h.logger, ctx, middleware.GetRequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.RecordCrossSourceScore(ctx, subject, req.Source, req.Score); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreditResponse is the HTTP representation of a subject's aggregate.
type CreditResponse struct {
	Subject              string             `json:"subject"`
	TotalLoans           uint64             `json:"total_loans"`
	RepaidLoans          uint64             `json:"repaid_loans"`
	LiquidatedLoans      uint64             `json:"liquidated_loans"`
	ActiveLoans          uint64             `json:"active_loans"`
	TotalCollateralValue int64              `json:"total_collateral_value"`
	TotalBorrowedValue   int64              `json:"total_borrowed_value"`
	MaxLtvBorrowCount    uint64             `json:"max_ltv_borrow_count"`
	CollateralAssets     map[string]uint64  `json:"collateral_assets"`
	FirstSeen            *time.Time         `json:"first_seen,omitempty"`
	KYCVerified          bool               `json:"kyc_verified"`
	KYCExpiresAt         *time.Time         `json:"kyc_expires_at,omitempty"`
	StakeAmount          int64              `json:"stake_amount"`
	StakeSince           *time.Time         `json:"stake_since,omitempty"`
	VoteCount            uint64             `json:"vote_count"`
	ProposalCount        uint64             `json:"proposal_count"`
	LastActivityAt       *time.Time         `json:"last_activity_at,omitempty"`
	CrossSourceScores    map[string]float64 `json:"cross_source_scores"`
}

func creditResponse(agg *ledger.AggregateCreditData) CreditResponse {
	return CreditResponse{
		Subject:              string(agg.Subject),
		TotalLoans:           agg.TotalLoans,
		RepaidLoans:          agg.RepaidLoans,
		LiquidatedLoans:      agg.LiquidatedLoans,
		ActiveLoans:          agg.ActiveLoans,
		TotalCollateralValue: agg.TotalCollateralValue,
		TotalBorrowedValue:   agg.TotalBorrowedValue,
		MaxLtvBorrowCount:    agg.MaxLtvBorrowCount,
		CollateralAssets:     agg.CollateralAssets,
		FirstSeen:            omitZero(agg.FirstSeen),
		KYCVerified:          agg.KYC.Verified,
		KYCExpiresAt:         omitZero(agg.KYC.ExpiresAt),
		StakeAmount:          agg.Stake.Amount,
		StakeSince:           omitZero(agg.Stake.Since),
		VoteCount:            agg.Governance.VoteCount,
		ProposalCount:        agg.Governance.ProposalCount,
		LastActivityAt:       omitZero(agg.Governance.LastActivityAt),
		CrossSourceScores:    agg.CrossSourceScores,
	}
}

// HandleCredit handles GET /subjects/{subject}/credit requests.
func (h *Handler) HandleCredit(w http.ResponseWriter, r *http.Request) {
	subject, ok := parseSubject(w, r)
	if !ok {
		return
	}
	agg, err := h.service.GetAggregate(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, creditResponse(agg))
}

func parseSubject(w http.ResponseWriter, r *http.Request) (ledger.Subject, bool) {
	subject := strings.TrimSpace(chi.URLParam(r, "subject"))
	if subject == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "subject is required"))
		return "", false
	}
	return ledger.Subject(subject), true
}

func omitZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
