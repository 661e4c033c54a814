package chat_service

import (
	"context"

	"github.com/xenn00/musori/internal/dtos/chat_dto"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/relay"
)

type ChatServiceContract interface {
	SendMessage(ctx context.Context, roomId, senderId string, req chat_dto.SendMessageRequest) (*chat_dto.MessageResponse, *app_error.AppError)
	History(ctx context.Context, roomId, userId string, req chat_dto.HistoryRequest) (*chat_dto.HistoryResponse, *app_error.AppError)
	Subscribe(ctx context.Context, roomId, userId string) (*relay.Subscription, *app_error.AppError)
}
