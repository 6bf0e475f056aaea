package party

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the party registry.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers party routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{type}", h.list)
	r.Get("/{type}/{id}", h.get)
	r.Post("/{type}/{id}/account", h.ensureAccount)
}

func refFromURL(r *http.Request) (Ref, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return Ref{}, errors.New("invalid party id")
	}
	ref := Ref{Type: Type(chi.URLParam(r, "type")), ID: id}
	if !ref.Valid() {
		return Ref{}, errors.New("invalid party reference")
	}
	return ref, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	t := Type(chi.URLParam(r, "type"))
	if t != TypeCustomer && t != TypeSupplier && t != TypeEmployee {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unknown party type")
		return
	}
	parties, err := h.service.List(r.Context(), t)
	if err != nil {
		h.logger.Error("list parties", slog.Any("error", err), slog.String("type", string(t)))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, parties)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	p, err := h.service.Get(r.Context(), ref)
	if err != nil {
		if errors.Is(err, ErrPartyNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) ensureAccount(w http.ResponseWriter, r *http.Request) {
	ref, err := refFromURL(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	accountID, err := h.service.EnsureAccount(r.Context(), ref)
	if err != nil {
		if errors.Is(err, ErrPartyNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("ensure party account", slog.Any("error", err), slog.String("ref", ref.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int64{"account_id": accountID})
}
