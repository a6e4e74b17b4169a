package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trustline/internal/ledger"
	"trustline/internal/platform/middleware"
	"trustline/internal/vault"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/httputil"
)

// Service defines the interface for vault operations.
type Service interface {
	Borrow(ctx context.Context, subject ledger.Subject, collateralAmount int64, collateralAsset string, requestedPrincipal int64) (*vault.BorrowResult, error)
	Repay(ctx context.Context, loanID uuid.UUID, amount int64) (*vault.RepayResult, error)
	HealthFactor(ctx context.Context, loanID uuid.UUID) (float64, error)
	CurrentDebt(ctx context.Context, loanID uuid.UUID) (int64, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*ledger.LoanRecord, error)
}

// Handler wires loan endpoints to the vault service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a vault handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts loan endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/loans", h.HandleBorrow)
	r.Get("/loans/{loanID}", h.HandleGetLoan)
	r.Post("/loans/{loanID}/repayments", h.HandleRepay)
	r.Get("/loans/{loanID}/health", h.HandleHealth)
}

// BorrowResponse is the HTTP response body for POST /loans.
type BorrowResponse struct {
	LoanID          string `json:"loan_id"`
	CollateralValue int64  `json:"collateral_value"`
	LtvBps          uint64 `json:"ltv_bps"`
	Tier            string `json:"tier"`
	AprBps          uint64 `json:"apr_bps"`
	MaxLtvBps       uint64 `json:"max_ltv_bps"`
}

// HandleBorrow handles POST /loans requests.
func (h *Handler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BorrowRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Borrow(ctx, ledger.Subject(req.Subject), req.CollateralAmount, req.CollateralAsset, req.RequestedPrincipal)
	if err != nil {
		h.logger.ErrorContext(ctx, "borrow failed",
			"request_id", requestID,
			"subject", req.Subject,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, BorrowResponse{
		LoanID:          result.LoanID.String(),
		CollateralValue: result.CollateralValue,
		LtvBps:          result.LtvBps,
		Tier:            string(result.Terms.Tier),
		AprBps:          result.Terms.AprBps,
		MaxLtvBps:       result.Terms.MaxLtvBps,
	})
}

// LoanResponse is the HTTP representation of a loan.
type LoanResponse struct {
	LoanID           string     `json:"loan_id"`
	Subject          string     `json:"subject"`
	Principal        int64      `json:"principal"`
	RepaidAmount     int64      `json:"repaid_amount"`
	CollateralAmount int64      `json:"collateral_amount"`
	CollateralAsset  string     `json:"collateral_asset"`
	CollateralValue  int64      `json:"collateral_value"`
	LtvAtOpenBps     uint64     `json:"ltv_at_open_bps"`
	AprBps           uint64     `json:"apr_bps"`
	Status           string     `json:"status"`
	OpenedAt         time.Time  `json:"opened_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

func loanResponse(loan *ledger.LoanRecord) LoanResponse {
	return LoanResponse{
		LoanID:           loan.ID.String(),
		Subject:          string(loan.Subject),
		Principal:        loan.Principal,
		RepaidAmount:     loan.RepaidAmount,
		CollateralAmount: loan.CollateralAmount,
		CollateralAsset:  loan.CollateralAsset,
		CollateralValue:  loan.CollateralValue,
		LtvAtOpenBps:     loan.LtvAtOpen,
		AprBps:           loan.AprBps,
		Status:           string(loan.Status),
		OpenedAt:         loan.OpenedAt,
		ClosedAt:         loan.ClosedAt,
	}
}

// HandleGetLoan handles GET /loans/{loanID} requests.
func (h *Handler) HandleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	loan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loanResponse(loan))
}

// RepayResponse is the HTTP response body for a repayment.
type RepayResponse struct {
	Loan          LoanResponse `json:"loan"`
	RemainingDebt int64        `json:"remaining_debt"`
}

// HandleRepay handles POST /loans/{loanID}/repayments requests.
func (h *Handler) HandleRepay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[RepayRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Repay(ctx, loanID, req.Amount)
	if err != nil {
		h.logger.ErrorContext(ctx, "repayment failed",
			"request_id", requestID,
			"loan_id", loanID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, RepayResponse{
		Loan:          loanResponse(result.Loan),
		RemainingDebt: result.RemainingDebt,
	})
}

// HealthResponse is the HTTP response body for a health reading.
type HealthResponse struct {
	LoanID       string  `json:"loan_id"`
	HealthFactor float64 `json:"health_factor"`
	CurrentDebt  int64   `json:"current_debt"`
	Infinite     bool    `json:"infinite,omitempty"`
}

// HandleHealth handles GET /loans/{loanID}/health requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	hf, err := h.service.HealthFactor(ctx, loanID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	debt, err := h.service.CurrentDebt(ctx, loanID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := HealthResponse{LoanID: loanID.String(), CurrentDebt: debt}
	if math.IsInf(hf, 1) {
		// JSON has no infinity; report the flag and omit the number.
		resp.Infinite = true
	} else {
		resp.HealthFactor = hf
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseLoanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "loanID")
	loanID, err := uuid.Parse(raw)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "loanID must be a UUID"))
		return uuid.Nil, false
	}
	return loanID, true
}
