package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xenn00/musori/internal/handlers"
	presence_handler "github.com/xenn00/musori/internal/handlers/presence-handler"
)

func PresenceRouter(r chi.Router, deps Dependencies, auth func(http.Handler) http.Handler) {
	if deps.Presence == nil {
		return
	}
	presenceHandler := presence_handler.NewPresenceHandler(deps.Presence, deps.Users)

	r.Group(func(protected chi.Router) {
		protected.Use(auth)
		protected.Get("/api/v1/presence", handlers.WrapHandler(presenceHandler.ListOnline))
		protected.Get("/api/v1/presence/{userId}", handlers.WrapHandler(presenceHandler.GetPresence))
		protected.Post("/api/v1/presence/heartbeat", handlers.WrapHandler(presenceHandler.Heartbeat))
		protected.Delete("/api/v1/presence", handlers.WrapHandler(presenceHandler.Leave))
	})
}
