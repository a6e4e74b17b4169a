package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustline/internal/liquidation"
	dErrors "trustline/pkg/domain-errors"
)

type stubService struct {
	auction    *liquidation.Auction
	startErr   error
	getErr     error
	discount   uint64
	executeErr error
	cancelErr  error
}

func (s *stubService) StartLiquidation(context.Context, uuid.UUID) (*liquidation.Auction, error) {
	return s.auction, s.startErr
}

func (s *stubService) GetAuction(context.Context, uuid.UUID) (*liquidation.Auction, error) {
	return s.auction, s.getErr
}

func (s *stubService) CurrentDiscount(context.Context, uuid.UUID) (uint64, error) {
	return s.discount, s.getErr
}

func (s *stubService) ExecuteLiquidation(context.Context, uuid.UUID) (*liquidation.Auction, error) {
	return s.auction, s.executeErr
}

func (s *stubService) CancelAuction(context.Context, uuid.UUID) (*liquidation.Auction, error) {
	return s.auction, s.cancelErr
}

func newRouter(svc Service) *chi.Mux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return r
}

func pendingAuction() *liquidation.Auction {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &liquidation.Auction{
		ID:             uuid.New(),
		LoanID:         uuid.New(),
		Subject:        "alice",
		StartedAt:      now,
		GraceEndAt:     now.Add(24 * time.Hour),
		MaxDiscountBps: 2_000,
		RampDuration:   6 * time.Hour,
		Status:         liquidation.AuctionPending,
	}
}

func TestHandleStart(t *testing.T) {
	auction := pendingAuction()
	router := newRouter(&stubService{auction: auction})

	body, _ := json.Marshal(map[string]any{"loan_id": auction.LoanID.String()})
	req := httptest.NewRequest(http.MethodPost, "/liquidations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AuctionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, auction.ID.String(), resp.AuctionID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, int64(6*60*60), resp.RampSeconds)
}

func TestHandleStartBadLoanID(t *testing.T) {
	router := newRouter(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/liquidations", strings.NewReader(`{"loan_id":"nope"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStartHealthyLoanConflicts(t *testing.T) {
	svc := &stubService{startErr: dErrors.New(dErrors.CodeState, "health factor above trigger")}
	router := newRouter(svc)

	body, _ := json.Marshal(map[string]any{"loan_id": uuid.NewString()})
	req := httptest.NewRequest(http.MethodPost, "/liquidations", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleExecuteDuringGraceConflicts(t *testing.T) {
	svc := &stubService{executeErr: dErrors.New(dErrors.CodeState, "grace period active")}
	router := newRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/liquidations/"+uuid.NewString()+"/execute", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleGetUnknownAuction(t *testing.T) {
	svc := &stubService{getErr: dErrors.New(dErrors.CodeNotFound, "auction lookup")}
	router := newRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/liquidations/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDiscount(t *testing.T) {
	router := newRouter(&stubService{discount: 1_000})

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/liquidations/"+id.String()+"/discount", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DiscountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id.String(), resp.AuctionID)
	assert.Equal(t, uint64(1_000), resp.DiscountBps)
}

func TestHandleBadAuctionID(t *testing.T) {
	router := newRouter(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/liquidations/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
