package user_repo

import (
	"context"

	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
)

type UserRepoContract interface {
	FindOrCreate(ctx context.Context, model entity.User) (*entity.User, *app_error.AppError)
	FindByID(ctx context.Context, userId string) (*entity.User, *app_error.AppError)
	FindByEmail(ctx context.Context, email string) (*entity.User, *app_error.AppError)
	FindByIDs(ctx context.Context, userIds []string) ([]entity.User, *app_error.AppError)
	UpdateUser(ctx context.Context, userId string, fields map[string]any) (*entity.User, *app_error.AppError)
	DeleteUser(ctx context.Context, userId string) *app_error.AppError
}
