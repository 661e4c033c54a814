package room_service

import (
	"context"

	"github.com/xenn00/musori/internal/dtos/room_dto"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
)

type RoomServiceContract interface {
	EnsureDefaultRoom(ctx context.Context) *app_error.AppError
	CreateRoom(ctx context.Context, req room_dto.CreateRoomRequest, userId string) (*room_dto.RoomResponse, *app_error.AppError)
	ListRooms(ctx context.Context, userId string) ([]room_dto.RoomResponse, *app_error.AppError)
	OpenRoom(ctx context.Context, roomId, userId string) (*entity.Room, *app_error.AppError)
	GetRoom(ctx context.Context, roomId, userId string) (*room_dto.RoomResponse, *app_error.AppError)
	UpdateRoom(ctx context.Context, roomId, userId string, req room_dto.UpdateRoomRequest) (*room_dto.RoomResponse, *app_error.AppError)
	DeleteRoom(ctx context.Context, roomId, userId string) *app_error.AppError
	InviteByEmail(ctx context.Context, roomId, inviterId string, req room_dto.InviteRequest) (*room_dto.InviteResponse, *app_error.AppError)
	RemoveMember(ctx context.Context, roomId, actorId, userId string) *app_error.AppError
	Members(ctx context.Context, roomId, userId string) (*room_dto.MembersResponse, *app_error.AppError)
}
