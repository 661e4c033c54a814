package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xenn00/musori/internal/handlers"
	room_handler "github.com/xenn00/musori/internal/handlers/room-handler"
)

func RoomRouter(r chi.Router, deps Dependencies, auth func(http.Handler) http.Handler) {
	roomHandler := room_handler.NewRoomHandler(deps.Rooms, deps.Hub)

	r.Group(func(protected chi.Router) {
		protected.Use(auth)
		protected.Post("/api/v1/rooms", handlers.WrapHandler(roomHandler.CreateRoom))
		protected.Get("/api/v1/rooms", handlers.WrapHandler(roomHandler.ListRooms))
		protected.Get("/api/v1/rooms/{roomId}", handlers.WrapHandler(roomHandler.GetRoom))
		protected.Patch("/api/v1/rooms/{roomId}", handlers.WrapHandler(roomHandler.UpdateRoom))
		protected.Delete("/api/v1/rooms/{roomId}", handlers.WrapHandler(roomHandler.DeleteRoom))
		protected.Post("/api/v1/rooms/{roomId}/invite", handlers.WrapHandler(roomHandler.Invite))
		protected.Get("/api/v1/rooms/{roomId}/members", handlers.WrapHandler(roomHandler.Members))
		protected.Delete("/api/v1/rooms/{roomId}/members/{userId}", handlers.WrapHandler(roomHandler.RemoveMember))
	})
}
