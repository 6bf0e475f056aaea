package reconcile

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for balance reconciliation.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconciliation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounts/{id}/recalculate", h.recalculate)
	r.Get("/trial-balance", h.trialBalance)
}

type recalculateRequest struct {
	Repair bool `json:"repair"`
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var req recalculateRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	result, err := h.service.Recalculate(r.Context(), id, req.Repair)
	if err != nil {
		h.logger.Error("recalculate balance", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.service.CheckTrialBalance(r.Context())
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}
