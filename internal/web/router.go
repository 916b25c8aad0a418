package web

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/arbitrageos/campaignd/internal/ratelimit"
	"github.com/arbitrageos/campaignd/internal/web/handlers"
	"github.com/arbitrageos/campaignd/internal/web/middleware"
)

// RouterDeps holds all dependencies needed to build the router.
type RouterDeps struct {
	TickHandler     *handlers.TickHandler
	CampaignHandler *handlers.CampaignHandler
	MailboxHandler  *handlers.MailboxHandler
	APIToken        string
	Limiter         *ratelimit.Limiter
	DB              *sql.DB
}

// NewRouter wires all routes into a Chi router.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.DB.PingContext(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// External scheduler trigger.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(deps.APIToken))
		r.Post("/api/v1/cron/tick", deps.TickHandler.HandleTick)
	})

	// Operator API: manual re-trigger plus campaign and mailbox lifecycle.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.Limiter))
		r.Use(middleware.RequireToken(deps.APIToken))

		r.Post("/api/v1/tick", deps.TickHandler.HandleTick)

		r.Post("/api/v1/campaigns", deps.CampaignHandler.HandleCreate)
		r.Get("/api/v1/campaigns", deps.CampaignHandler.HandleList)
		r.Get("/api/v1/campaigns/{id}", deps.CampaignHandler.HandleGet)
		r.Post("/api/v1/campaigns/{id}/pause", deps.CampaignHandler.HandlePause)
		r.Post("/api/v1/campaigns/{id}/resume", deps.CampaignHandler.HandleResume)

		r.Post("/api/v1/mailboxes", deps.MailboxHandler.HandleConnect)
		r.Get("/api/v1/mailboxes", deps.MailboxHandler.HandleList)
		r.Post("/api/v1/mailboxes/{id}/enable", deps.MailboxHandler.HandleEnable)
		r.Post("/api/v1/mailboxes/{id}/disable", deps.MailboxHandler.HandleDisable)
	})

	return r
}
