package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"trustline/internal/ledger"
	"trustline/internal/platform/middleware"
	"trustline/internal/scoring"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/httputil"
)

// Service defines the interface for scoring operations.
type Service interface {
	ComputeScore(ctx context.Context, subject ledger.Subject) (*scoring.Scorecard, error)
}

// Handler wires scoring endpoints to the scoring service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a scoring handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts scoring endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/subjects/{subject}/score", h.HandleGetScore)
}

// HandleGetScore handles GET /subjects/{subject}/score requests.
func (h *Handler) HandleGetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	subject := strings.TrimSpace(chi.URLParam(r, "subject"))
	if subject == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "subject is required"))
		return
	}

	card, err := h.service.ComputeScore(ctx, ledger.Subject(subject))
	if err != nil {
		h.logger.ErrorContext(ctx, "score computation failed",
			"request_id", requestID,
			"subject", subject,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, card)
}
