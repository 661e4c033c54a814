package room_repo

import (
	"context"

	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
)

type RoomRepoContract interface {
	CreateRoom(ctx context.Context, room *entity.Room) *app_error.AppError
	FindRoomByID(ctx context.Context, roomId string) (*entity.Room, *app_error.AppError)
	ListVisibleRooms(ctx context.Context, userId string) ([]entity.Room, *app_error.AppError)
	UpdateRoomSettings(ctx context.Context, room entity.Room, expectedRevision int64) (*entity.Room, *app_error.AppError)
	DeleteRoom(ctx context.Context, roomId string) *app_error.AppError
	AddMember(ctx context.Context, roomId, userId string) (bool, *app_error.AppError)
	RemoveMember(ctx context.Context, roomId, userId string) (bool, *app_error.AppError)
	RemoveUserFromAllRooms(ctx context.Context, userId string) *app_error.AppError
}
