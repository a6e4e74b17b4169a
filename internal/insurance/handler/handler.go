package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trustline/internal/insurance"
	"trustline/internal/platform/middleware"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/httputil"
)

// Service defines the interface for insurance fund operations.
type Service interface {
	Deposit(ctx context.Context, amount int64) error
	AllocateRevenue(ctx context.Context, protocolRevenue int64) (int64, error)
	Snapshot(ctx context.Context) insurance.Snapshot
}

// Handler wires insurance endpoints to the fund.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an insurance handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts insurance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/insurance", h.HandleGetFund)
	r.Post("/insurance/deposits", h.HandleDeposit)
	r.Post("/insurance/allocations", h.HandleAllocate)
}

// HandleGetFund handles GET /insurance requests.
func (h *Handler) HandleGetFund(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Snapshot(r.Context()))
}

// DepositRequest is the HTTP request body for POST /insurance/deposits.
type DepositRequest struct {
	Amount int64 `json:"amount"`
}

// Validate implements the Validatable interface.
func (r *DepositRequest) Validate() error {
	if r.Amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive")
	}
	return nil
}

// HandleDeposit handles POST /insurance/deposits requests.
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DepositRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Deposit(ctx, req.Amount); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.Snapshot(ctx))
}

// AllocateRequest is the HTTP request body for POST /insurance/allocations.
type AllocateRequest struct {
	ProtocolRevenue int64 `json:"protocol_revenue"`
}

// Validate implements the Validatable interface.
func (r *AllocateRequest) Validate() error {
	if r.ProtocolRevenue < 0 {
		return dErrors.New(dErrors.CodeValidation, "protocol_revenue must not be negative")
	}
	return nil
}

// AllocateResponse reports the amount moved into the pool.
type AllocateResponse struct {
	Allocated int64              `json:"allocated"`
	Fund      insurance.Snapshot `json:"fund"`
}

// HandleAllocate handles POST /insurance/allocations requests.
func (h *Handler) HandleAllocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AllocateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	allocated, err := h.service.AllocateRevenue(ctx, req.ProtocolRevenue)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AllocateResponse{
		Allocated: allocated,
		Fund:      h.service.Snapshot(ctx),
	})
}
