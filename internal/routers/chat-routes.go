package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xenn00/musori/internal/handlers"
	chat_handler "github.com/xenn00/musori/internal/handlers/chat-handler"
	"github.com/xenn00/musori/internal/websocket"
)

func ChatRouter(r chi.Router, deps Dependencies, auth func(http.Handler) http.Handler) {
	chatHandler := chat_handler.NewChatHandler(deps.Chat)

	// the socket authenticates on its own: browsers can't set headers on the handshake
	wsHandler := websocket.NewWebSocketHandler(deps.Hub, deps.Chat, deps.Users, websocket.JWTWebSocketAuth(deps.State.JwtSecret.Public))
	r.Handle("/ws", wsHandler)

	r.Group(func(protected chi.Router) {
		protected.Use(auth)
		protected.Post("/api/v1/rooms/{roomId}/messages", handlers.WrapHandler(chatHandler.SendMessage))
		protected.Get("/api/v1/rooms/{roomId}/messages", handlers.WrapHandler(chatHandler.GetMessages))
	})
}
