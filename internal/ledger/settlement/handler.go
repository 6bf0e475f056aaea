package settlement

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/party"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for vouchers and allocations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	metrics   *observability.Metrics
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// WithMetrics enables allocation counters.
func (h *Handler) WithMetrics(m *observability.Metrics) {
	h.metrics = m
}

// MountRoutes registers settlement routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/invoices/{id}/allocations", h.listAllocations)
	r.Post("/allocations", h.allocate)
	r.Post("/allocations/{id}/reverse", h.reverse)
	r.Post("/vouchers/{id}/post", h.postVoucher)
}

type explicitTarget struct {
	InvoiceID int64   `json:"invoice_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"gt=0"`
}

type allocateRequest struct {
	VoucherID int64            `json:"voucher_id" validate:"required"`
	Amount    float64          `json:"amount" validate:"gt=0"`
	PartyType string           `json:"party_type" validate:"omitempty,oneof=CUSTOMER SUPPLIER EMPLOYEE"`
	PartyID   int64            `json:"party_id"`
	Explicit  []explicitTarget `json:"explicit" validate:"dive"`
	ActorID   int64            `json:"actor_id"`
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := AllocateInput{
		VoucherID: req.VoucherID,
		Amount:    req.Amount,
		Party:     party.Ref{Type: party.Type(req.PartyType), ID: req.PartyID},
		ActorID:   req.ActorID,
	}
	for _, target := range req.Explicit {
		in.Explicit = append(in.Explicit, ExplicitAllocation(target))
	}
	result, err := h.service.Allocate(r.Context(), in)
	h.metrics.RecordAllocation(err)
	if err != nil {
		h.logger.Error("allocate", slog.Any("error", err), slog.Int64("voucher_id", req.VoucherID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type reverseRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason" validate:"required"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid allocation id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ReverseAllocation(r.Context(), id, req.ActorID, req.Reason); err != nil {
		h.logger.Error("reverse allocation", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postVoucherRequest struct {
	ActorID  int64            `json:"actor_id"`
	Explicit []explicitTarget `json:"explicit" validate:"dive"`
}

func (h *Handler) postVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid voucher id")
		return
	}
	var req postVoucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var explicit []ExplicitAllocation
	for _, target := range req.Explicit {
		explicit = append(explicit, ExplicitAllocation(target))
	}
	result, err := h.service.PostVoucher(r.Context(), id, req.ActorID, explicit)
	h.metrics.RecordAllocation(err)
	if err != nil {
		h.logger.Error("post voucher", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) listAllocations(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	allocations, err := h.service.ListAllocations(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, allocations)
}
