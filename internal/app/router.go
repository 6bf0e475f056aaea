package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/ledger/coa"
	"github.com/meridian-erp/meridian-erp/internal/ledger/posting"
	"github.com/meridian-erp/meridian-erp/internal/ledger/reconcile"
	"github.com/meridian-erp/meridian-erp/internal/ledger/settlement"
	"github.com/meridian-erp/meridian-erp/internal/ledger/validation"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/party"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AccountsHandler   *coa.Handler
	JournalsHandler   *posting.Handler
	SettlementHandler *settlement.Handler
	ReconcileHandler  *reconcile.Handler
	ValidationHandler *validation.Handler
	PartyHandler      *party.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/ledger", func(r chi.Router) {
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.JournalsHandler != nil {
			r.Route("/journals", params.JournalsHandler.MountRoutes)
		}
		if params.SettlementHandler != nil {
			r.Route("/settlement", params.SettlementHandler.MountRoutes)
		}
		if params.ReconcileHandler != nil {
			r.Route("/reconcile", params.ReconcileHandler.MountRoutes)
		}
		if params.ValidationHandler != nil {
			r.Route("/validation", params.ValidationHandler.MountRoutes)
		}
	})
	if params.PartyHandler != nil {
		r.Route("/parties", params.PartyHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
