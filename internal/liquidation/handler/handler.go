// Package handler exposes the liquidation service over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"trustline/internal/liquidation"
	"trustline/internal/platform/middleware"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/httputil"
)

// Service is the liquidation surface the handler drives.
type Service interface {
	StartLiquidation(ctx context.Context, loanID uuid.UUID) (*liquidation.Auction, error)
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*liquidation.Auction, error)
	CurrentDiscount(ctx context.Context, auctionID uuid.UUID) (uint64, error)
	ExecuteLiquidation(ctx context.Context, auctionID uuid.UUID) (*liquidation.Auction, error)
	CancelAuction(ctx context.Context, auctionID uuid.UUID) (*liquidation.Auction, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts liquidation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/liquidations", h.HandleStart)
	r.Get("/liquidations/{auctionID}", h.HandleGet)
	r.Get("/liquidations/{auctionID}/discount", h.HandleDiscount)
	r.Post("/liquidations/{auctionID}/execute", h.HandleExecute)
	r.Post("/liquidations/{auctionID}/cancel", h.HandleCancel)
}

// StartRequest opens an auction on an unhealthy loan.
type StartRequest struct {
	LoanID string `json:"loan_id"`

	loanID uuid.UUID
}

func (r *StartRequest) Validate() error {
	r.LoanID = strings.TrimSpace(r.LoanID)
	id, err := uuid.Parse(r.LoanID)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "loan_id must be a valid UUID")
	}
	r.loanID = id
	return nil
}

// AuctionResponse is the HTTP representation of an auction.
type AuctionResponse struct {
	AuctionID        string     `json:"auction_id"`
	LoanID           string     `json:"loan_id"`
	Subject          string     `json:"subject"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	GraceEndAt       time.Time  `json:"grace_end_at"`
	MaxDiscountBps   uint64     `json:"max_discount_bps"`
	RampSeconds      int64      `json:"ramp_seconds"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	FinalDiscountBps uint64     `json:"final_discount_bps,omitempty"`
	Payout           int64      `json:"payout,omitempty"`
	Covered          int64      `json:"covered,omitempty"`
	Surplus          int64      `json:"surplus,omitempty"`
}

func auctionResponse(a *liquidation.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:        a.ID.String(),
		LoanID:           a.LoanID.String(),
		Subject:          string(a.Subject),
		Status:           string(a.Status),
		StartedAt:        a.StartedAt,
		GraceEndAt:       a.GraceEndAt,
		MaxDiscountBps:   a.MaxDiscountBps,
		RampSeconds:      int64(a.RampDuration / time.Second),
		ClosedAt:         a.ClosedAt,
		FinalDiscountBps: a.FinalDiscountBps,
		Payout:           a.Payout,
		Covered:          a.Covered,
		Surplus:          a.Surplus,
	}
}

// HandleStart handles POST /liquidations requests.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	auction, err := h.service.StartLiquidation(ctx, req.loanID)
	if err != nil {
		h.logger.ErrorContext(ctx, "start liquidation failed",
			"request_id", requestID,
			"loan_id", req.LoanID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, auctionResponse(auction))
}

// HandleGet handles GET /liquidations/{auctionID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := parseAuctionID(w, r)
	if !ok {
		return
	}

	auction, err := h.service.GetAuction(r.Context(), auctionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auctionResponse(auction))
}

// DiscountResponse reports the discount in effect at read time.
type DiscountResponse struct {
	AuctionID   string `json:"auction_id"`
	DiscountBps uint64 `json:"discount_bps"`
}

// HandleDiscount handles GET /liquidations/{auctionID}/discount requests.
func (h *Handler) HandleDiscount(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := parseAuctionID(w, r)
	if !ok {
		return
	}

	discount, err := h.service.CurrentDiscount(r.Context(), auctionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DiscountResponse{
		AuctionID:   auctionID.String(),
		DiscountBps: discount,
	})
}

// HandleExecute handles POST /liquidations/{auctionID}/execute requests.
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auctionID, ok := parseAuctionID(w, r)
	if !ok {
		return
	}

	auction, err := h.service.ExecuteLiquidation(ctx, auctionID)
	if err != nil {
		h.logger.ErrorContext(ctx, "execute liquidation failed",
			"request_id", middleware.GetRequestID(ctx),
			"auction_id", auctionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auctionResponse(auction))
}

// HandleCancel handles POST /liquidations/{auctionID}/cancel requests.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auctionID, ok := parseAuctionID(w, r)
	if !ok {
		return
	}

	auction, err := h.service.CancelAuction(ctx, auctionID)
	if err != nil {
		h.logger.ErrorContext(ctx, "cancel auction failed",
			"request_id", middleware.GetRequestID(ctx),
			"auction_id", auctionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auctionResponse(auction))
}

func parseAuctionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "auctionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "auction ID must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}
