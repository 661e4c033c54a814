package hub_handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/handlers"
	"github.com/xenn00/musori/internal/websocket"
)

type HubHandler struct {
	Hub     *websocket.Hub
	Service string
}

func NewHubHandler(hub *websocket.Hub, service string) *HubHandler {
	return &HubHandler{
		Hub:     hub,
		Service: service,
	}
}

func (h *HubHandler) HandleHealth(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	return handlers.Respond(w, r, http.StatusOK, "healthy", map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   h.Service,
	})
}

func (h *HubHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	return handlers.Respond(w, r, http.StatusOK, "get websocket stats", h.Hub.GetHubStats())
}

func (h *HubHandler) HandleGetRoomStats(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	stats := h.Hub.GetRoomStats(chi.URLParam(r, "roomId"))
	return handlers.Respond(w, r, http.StatusOK, "get websocket room stats", stats)
}
