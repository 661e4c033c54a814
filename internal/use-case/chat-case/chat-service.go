package chat_service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/dtos/chat_dto"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/relay"
	user_repo "github.com/xenn00/musori/internal/repo/user"
	room_service "github.com/xenn00/musori/internal/use-case/room-case"
	"github.com/xenn00/musori/state"
)

type ChatService struct {
	AppState *state.AppState
	Rooms    room_service.RoomServiceContract
	UserRepo user_repo.UserRepoContract
	Relay    *relay.Relay
}

func NewChatService(appState *state.AppState, rooms room_service.RoomServiceContract, r *relay.Relay) ChatServiceContract {
	return &ChatService{
		AppState: appState,
		Rooms:    rooms,
		UserRepo: user_repo.NewUserRepo(appState),
		Relay:    r,
	}
}

func (c *ChatService) SendMessage(ctx context.Context, roomId, senderId string, req chat_dto.SendMessageRequest) (*chat_dto.MessageResponse, *app_error.AppError) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, app_error.NewAppError(http.StatusBadRequest, "message text is required", "text")
	}
	if utf8.RuneCountInString(text) > chat_dto.MaxMessageLength {
		return nil, app_error.NewAppError(http.StatusBadRequest, "message text is too long", "text")
	}

	if _, err := c.Rooms.OpenRoom(ctx, roomId, senderId); err != nil {
		return nil, err
	}
	sender, err := c.UserRepo.FindByID(ctx, senderId)
	if err != nil {
		return nil, err
	}

	msg, pubErr := c.Relay.Publish(ctx, entity.Message{
		RoomID:    roomId,
		SenderID:  sender.ID,
		Nickname:  sender.Nickname,
		Text:      text,
		AvatarURL: sender.AvatarURL,
		Kind:      entity.MessageKindChat,
	})
	if pubErr != nil {
		log.Error().Err(pubErr).Str("room_id", roomId).Str("sender_id", senderId).Msg("failed to publish message")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "failed to send message", "relay")
	}

	resp := chat_dto.NewMessageResponse(msg)
	return &resp, nil
}

func (c *ChatService) History(ctx context.Context, roomId, userId string, req chat_dto.HistoryRequest) (*chat_dto.HistoryResponse, *app_error.AppError) {
	if _, err := c.Rooms.OpenRoom(ctx, roomId, userId); err != nil {
		return nil, err
	}

	msgs, histErr := c.Relay.History(ctx, roomId, req.Limit)
	if histErr != nil {
		log.Error().Err(histErr).Str("room_id", roomId).Msg("failed to load history")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "failed to load messages", "relay")
	}

	resp := &chat_dto.HistoryResponse{RoomID: roomId, Messages: make([]chat_dto.MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, chat_dto.NewMessageResponse(m))
	}
	return resp, nil
}

func (c *ChatService) Subscribe(ctx context.Context, roomId, userId string) (*relay.Subscription, *app_error.AppError) {
	if _, err := c.Rooms.OpenRoom(ctx, roomId, userId); err != nil {
		return nil, err
	}

	sub, subErr := c.Relay.Subscribe(ctx, roomId)
	if subErr != nil {
		if errors.Is(subErr, relay.ErrEmptyRoom) {
			return nil, app_error.NewAppError(http.StatusBadRequest, "room id is required", "room-id")
		}
		log.Error().Err(subErr).Str("room_id", roomId).Msg("failed to subscribe")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "failed to subscribe to room", "relay")
	}
	return sub, nil
}
