package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dealdojo/backend/internal/config"
	roleplayHandler "github.com/dealdojo/backend/internal/handler/roleplay"
	scenarioHandler "github.com/dealdojo/backend/internal/handler/scenario"
	sessionHandler "github.com/dealdojo/backend/internal/handler/session"
	middlewarePkg "github.com/dealdojo/backend/internal/middleware"
	scenarioModel "github.com/dealdojo/backend/internal/model/scenario"
	roleplaySvc "github.com/dealdojo/backend/internal/service/roleplay"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(scenarios scenarioModel.Store, svc *roleplaySvc.Service, cfg config.EngineConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		scenarioHandler.New(scenarios).RegisterRoutes(api)
		sessionHandler.New(svc).RegisterRoutes(api)
	})

	roleplayHandler.NewWebSocketHandler(svc, cfg).RegisterWebSocketRoutes(r)

	return r
}
