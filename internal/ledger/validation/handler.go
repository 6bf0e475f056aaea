package validation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the validation orchestrator.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers validation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/runs", h.run)
	r.Get("/latest", h.latest)
	r.Get("/history", h.history)
	r.Get("/health", h.health)
}

type runRequest struct {
	IncludePerformance bool `json:"include_performance"`
	ValidateHistorical bool `json:"validate_historical"`
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	report, err := h.service.RunWith(r.Context(), RunOptions{
		IncludePerformance: req.IncludePerformance,
		ValidateHistorical: req.ValidateHistorical,
	})
	if err != nil {
		h.logger.Error("validation run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Latest(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoReport) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no validation run recorded yet")
			return
		}
		h.logger.Error("latest validation report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.History())
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.QuickHealthCheck(r.Context())
	if err != nil {
		h.logger.Error("quick health check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if !summary.Healthy {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, summary)
}
