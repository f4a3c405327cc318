package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/realtime-relay/backend/internal/handler/conversation"
	"github.com/zhouzirui/realtime-relay/backend/internal/handler/realtime"
	middlewarePkg "github.com/zhouzirui/realtime-relay/backend/internal/middleware"
	"github.com/zhouzirui/realtime-relay/backend/pkg/utils"
)

// Deps are the services the HTTP surface is built on. Relay may be nil when
// no provider credential is configured.
type Deps struct {
	Relay          realtime.RelayService
	Conversations  conversation.Store
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins, deps.Logger))

	realtimeHandler := realtime.New(deps.Relay)
	conversationHandler := conversation.New(deps.Conversations)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"relay":  deps.Relay != nil,
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	realtimeHandler.RegisterRoutes(r)
	conversationHandler.RegisterRoutes(r)

	// Route names of the original service, kept for existing clients.
	r.Route("/api", func(api chi.Router) {
		realtimeHandler.RegisterLegacyRoutes(api)
		api.Get("/conversations/{id}", conversationHandler.HandleGet)
	})

	return r
}
