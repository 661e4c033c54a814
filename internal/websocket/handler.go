package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/dtos"
	"github.com/xenn00/musori/internal/dtos/chat_dto"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/relay"
)

type ChatService interface {
	SendMessage(ctx context.Context, roomId, senderId string, req chat_dto.SendMessageRequest) (*chat_dto.MessageResponse, *app_error.AppError)
	Subscribe(ctx context.Context, roomId, userId string) (*relay.Subscription, *app_error.AppError)
}

type UserResolver interface {
	EnsureUser(ctx context.Context, identity entity.Identity) (*entity.User, *app_error.AppError)
}

// AuthenticatorFunc resolves the caller of an upgrade request.
type AuthenticatorFunc func(r *http.Request) (entity.Identity, error)

type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

type WebSocketHandler struct {
	hub           *Hub
	chat          ChatService
	users         UserResolver
	authenticator AuthenticatorFunc
	upgrader      websocket.Upgrader
}

// NewWebSocketHandler builds the upgrade endpoint. A nil authenticator trusts the user_id and
// nickname query parameters, which is only suitable for local development.
func NewWebSocketHandler(hub *Hub, chat ChatService, users UserResolver, authenticator AuthenticatorFunc) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		chat:          chat,
		users:         users,
		authenticator: authenticator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: check Origin against app.public_url once a web client is served from it
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP checks the caller and their access to the room before upgrading, so a refused
// connection gets a regular JSON error instead of a closed socket.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticateConnection(r)
	if err != nil {
		writeError(w, r, app_error.NewAppError(http.StatusUnauthorized, err.Error(), "auth"))
		return
	}

	user, appErr := h.users.EnsureUser(r.Context(), identity)
	if appErr != nil {
		writeError(w, r, appErr)
		return
	}

	roomID := extractRoomID(r)

	// the request context ends when ServeHTTP returns, the connection outlives it
	ctx, cancel := context.WithCancel(context.Background())
	sub, appErr := h.chat.Subscribe(ctx, roomID, user.ID)
	if appErr != nil {
		cancel()
		writeError(w, r, appErr)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		log.Error().Err(err).Str("userID", user.ID).Msg("ws: upgrade failed")
		return
	}

	client := newClient(ctx, cancel, h.hub, conn, user, roomID)
	client.onEvent = h.handleEvent
	h.hub.Register(client)
	go h.forward(client, sub)
	client.Start()

	log.Debug().Str("clientID", client.ID).Str("ip", getClientIP(r)).Msg("ws: connection established")
}

func (h *WebSocketHandler) handleEvent(c *Client, ev IncomingEvent) {
	c.touch()

	switch ev.Event {
	case EventHeartbeat:
		return

	case EventChatMessage:
		var payload ChatPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			c.SendEvent(NewErrorEvent(c.RoomID, http.StatusBadRequest, "invalid chat message payload", "data"))
			return
		}
		if _, err := h.chat.SendMessage(c.ctx, c.RoomID, c.UserID, chat_dto.SendMessageRequest{Text: payload.Text}); err != nil {
			c.SendEvent(NewErrorEvent(c.RoomID, err.Code, err.Message, err.Field))
		}

	default:
		c.SendEvent(NewErrorEvent(c.RoomID, http.StatusBadRequest, "unknown event "+ev.Event, "event"))
	}
}

// forward copies the room feed to the client. History arrives first, then live messages.
func (h *WebSocketHandler) forward(c *Client, sub *relay.Subscription) {
	defer sub.Close()

	for msg := range sub.C {
		if !c.SendEvent(NewEvent(EventChatMessage, msg.RoomID, chat_dto.NewMessageResponse(msg))) {
			return
		}
	}

	if errors.Is(sub.Err(), relay.ErrSlowConsumer) {
		log.Warn().Str("clientID", c.ID).Str("roomID", c.RoomID).Msg("ws: relay dropped slow subscriber")
		c.Close()
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err *app_error.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	_ = json.NewEncoder(w).Encode(dtos.Response[any]{
		Message:   "Error occur",
		RequestID: r.Header.Get("X-Request-ID"),
		Errors: &dtos.ErrorResponse{
			Code:    err.Code,
			Message: err.Message,
			Field:   err.Field,
		},
	})
}
