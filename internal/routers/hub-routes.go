package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xenn00/musori/internal/handlers"
	hub_handler "github.com/xenn00/musori/internal/handlers/hub-handler"
)

func HubRouter(r chi.Router, deps Dependencies, auth func(http.Handler) http.Handler) {
	hubHandler := hub_handler.NewHubHandler(deps.Hub, deps.ServiceName)

	r.Get("/api/v1/health", handlers.WrapHandler(hubHandler.HandleHealth))

	r.Group(func(protected chi.Router) {
		protected.Use(auth)
		protected.Get("/api/v1/stats", handlers.WrapHandler(hubHandler.HandleGetStats))
		protected.Get("/api/v1/rooms/{roomId}/stats", handlers.WrapHandler(hubHandler.HandleGetRoomStats))
	})
}
