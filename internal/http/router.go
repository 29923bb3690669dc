package httpx

import (
	"encoding/json"
	"net/http"

	"safiripay/internal/config"
	"safiripay/internal/domain/event"
	"safiripay/internal/http/handlers"
	middlewarex "safiripay/internal/http/middleware"
	"safiripay/internal/provider/daraja"
	"safiripay/internal/services/audit"
	"safiripay/internal/services/orchestrator"
	"safiripay/internal/services/reconcile"
	"safiripay/internal/store/repositories"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterDependencies holds everything the HTTP surface needs.
type RouterDependencies struct {
	Config        config.Cfg
	ProviderStore *config.ProviderStore
	Daraja        *daraja.Client
	Orchestrator  *orchestrator.Service
	Reconciler    *reconcile.Service
	Auditor       *audit.Service
	Attempts      repositories.AttemptRepository
	Obligations   repositories.ObligationRepository
	Events        repositories.EventRepository
}

// NewRouter builds the chi router: payment API, provider callbacks, and the
// admin-token-guarded operator surface.
func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middlewarex.RequestLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments/stk", handlers.InitiatePayment(deps.Orchestrator))
		r.Get("/attempts/{localRef}", handlers.AttemptByLocalRef(deps.Attempts))
		r.Get("/attempts", handlers.ListAttempts(deps.Attempts))
		r.Get("/obligations/{kind}/{id}", handlers.ObligationProgress(deps.Obligations))
		r.Get("/events", handlers.ListEvents(deps.Events))
	})

	r.Route("/callbacks/mpesa", func(r chi.Router) {
		r.Post("/", handlers.STKCallback(deps.Reconciler))
		r.Post("/balance", handlers.ProviderEventSink(deps.Reconciler, event.KindBalance, "balance_result"))
		r.Post("/timeout", handlers.ProviderEventSink(deps.Reconciler, event.KindPullTimeout, "queue_timeout"))
	})

	r.Route("/ops", func(r chi.Router) {
		r.Use(middlewarex.AdminAuth(deps.Config.Ops))
		r.Post("/config/reload", handlers.ReloadConfig(deps.ProviderStore))
		r.Post("/balance", handlers.QueryBalance(deps.Daraja, deps.Config.App))
		r.Post("/pull/register", handlers.RegisterPull(deps.Daraja, deps.Config.App))
		r.Post("/pull", handlers.RunPullAudit(deps.Auditor))
		r.Post("/events/replay", handlers.ReplayEvents(deps.Reconciler))
	})

	return r
}
