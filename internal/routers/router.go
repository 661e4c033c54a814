package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xenn00/musori/internal/middleware"
	"github.com/xenn00/musori/internal/presence"
	"github.com/xenn00/musori/internal/storage"
	chat_service "github.com/xenn00/musori/internal/use-case/chat-case"
	room_service "github.com/xenn00/musori/internal/use-case/room-case"
	user_service "github.com/xenn00/musori/internal/use-case/user-case"
	"github.com/xenn00/musori/internal/websocket"
	"github.com/xenn00/musori/state"
)

// Dependencies are the services the HTTP surface is built on. Presence and Avatars may be nil.
type Dependencies struct {
	State          *state.AppState
	Hub            *websocket.Hub
	Presence       presence.Tracker
	Users          user_service.UserServiceContract
	Rooms          room_service.RoomServiceContract
	Chat           chat_service.ChatServiceContract
	Avatars        storage.AvatarStore
	MaxAvatarBytes int64
	ServiceName    string
	DevTokens      bool
	DevTokenTTL    time.Duration
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.WithRequestId)
	r.Use(middleware.AccessLog)

	auth := middleware.JWTAuth(deps.State.JwtSecret.Public, deps.Users)

	HubRouter(r, deps, auth)
	UserRouter(r, deps, auth)
	RoomRouter(r, deps, auth)
	ChatRouter(r, deps, auth)
	PresenceRouter(r, deps, auth)
	DevRouter(r, deps)
	return r
}
