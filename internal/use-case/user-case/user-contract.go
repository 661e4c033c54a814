package user_service

import (
	"context"

	"github.com/xenn00/musori/internal/dtos/user_dto"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
)

type UserServiceContract interface {
	EnsureUser(ctx context.Context, identity entity.Identity) (*entity.User, *app_error.AppError)
	GetProfile(ctx context.Context, userId, viewerId string) (*user_dto.UserResponse, *app_error.AppError)
	UpdateProfile(ctx context.Context, userId string, req user_dto.UpdateProfileRequest) (*user_dto.UserResponse, *app_error.AppError)
	UploadAvatar(ctx context.Context, userId string, data []byte) (*user_dto.UserResponse, *app_error.AppError)
	DeleteAccount(ctx context.Context, userId string) *app_error.AppError
}
