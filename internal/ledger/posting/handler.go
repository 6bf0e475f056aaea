package posting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the posting engine.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	metrics   *observability.Metrics
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// WithMetrics enables posting counters.
func (h *Handler) WithMetrics(m *observability.Metrics) {
	h.metrics = m
}

// MountRoutes registers journal routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.post)
	r.Get("/{id}", h.get)
	r.Post("/{id}/cancel", h.cancel)
}

type postLineRequest struct {
	AccountID   int64   `json:"account_id" validate:"required"`
	Debit       float64 `json:"debit" validate:"gte=0"`
	Credit      float64 `json:"credit" validate:"gte=0"`
	Description string  `json:"description"`
}

type postRequest struct {
	Date         string            `json:"date" validate:"required"`
	SourceModule string            `json:"source_module" validate:"required"`
	SourceID     string            `json:"source_id" validate:"required,uuid"`
	Memo         string            `json:"memo"`
	PostedBy     int64             `json:"posted_by"`
	VoucherType  string            `json:"voucher_type"`
	VoucherNo    string            `json:"voucher_no"`
	Currency     string            `json:"currency" validate:"omitempty,len=3"`
	ExchangeRate float64           `json:"exchange_rate" validate:"gte=0"`
	Lines        []postLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "source_id must be a UUID")
		return
	}
	in := Input{
		Date:         date,
		SourceModule: req.SourceModule,
		SourceID:     sourceID,
		Memo:         req.Memo,
		PostedBy:     req.PostedBy,
		VoucherType:  req.VoucherType,
		VoucherNo:    req.VoucherNo,
		Currency:     req.Currency,
		ExchangeRate: req.ExchangeRate,
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, LineInput(line))
	}
	entry, err := h.service.Post(r.Context(), in)
	h.metrics.RecordPosting(req.SourceModule, err)
	if err != nil {
		h.logger.Error("post journal",
			slog.Any("error", err),
			slog.String("source_module", req.SourceModule),
			slog.String("source_id", req.SourceID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid journal id")
		return
	}
	entry, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry.Lines = lines
	httpx.JSON(w, http.StatusOK, entry)
}

type cancelRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason" validate:"required"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid journal id")
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.Cancel(r.Context(), CancelInput{EntryID: id, ActorID: req.ActorID, Reason: req.Reason})
	if err != nil {
		h.logger.Error("cancel journal", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}
