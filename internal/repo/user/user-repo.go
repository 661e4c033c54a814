package user_repo

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/state"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepo struct {
	AppState *state.AppState
}

func NewUserRepo(appState *state.AppState) UserRepoContract {
	return &UserRepo{
		AppState: appState,
	}
}

// FindOrCreate inserts model unless a user with the same id already exists, then returns the stored row.
func (r *UserRepo) FindOrCreate(ctx context.Context, model entity.User) (*entity.User, *app_error.AppError) {
	db := r.AppState.DB.WithContext(ctx)

	err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).Create(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, app_error.NewAppError(http.StatusConflict, "email is already used by another account", "email")
		}
		log.Error().Err(err).Str("user_id", model.ID).Msg("failed to create user")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "unexpected error occur when trying to create user", "db-create")
	}

	return r.FindByID(ctx, model.ID)
}

func (r *UserRepo) FindByID(ctx context.Context, userId string) (*entity.User, *app_error.AppError) {
	var user entity.User

	if err := r.AppState.DB.WithContext(ctx).Where("id = ?", userId).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_error.NewAppError(http.StatusNotFound, "cannot find user", "user-id")
		}
		return nil, app_error.NewAppError(http.StatusInternalServerError, "unexpected error occur when fetch user", "db-error")
	}

	return &user, nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, *app_error.AppError) {
	var user entity.User

	if err := r.AppState.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, app_error.NewAppError(http.StatusNotFound, "no user registered with this email", "email")
		}
		return nil, app_error.NewAppError(http.StatusInternalServerError, "unexpected error occur when fetch user", "db-error")
	}

	return &user, nil
}

func (r *UserRepo) FindByIDs(ctx context.Context, userIds []string) ([]entity.User, *app_error.AppError) {
	users := []entity.User{}
	if len(userIds) == 0 {
		return users, nil
	}

	if err := r.AppState.DB.WithContext(ctx).Where("id IN ?", userIds).Order("nickname ASC, id ASC").Find(&users).Error; err != nil {
		return nil, app_error.NewAppError(http.StatusInternalServerError, "unexpected error occur when fetch users", "db-error")
	}
	return users, nil
}

func (r *UserRepo) UpdateUser(ctx context.Context, userId string, fields map[string]any) (*entity.User, *app_error.AppError) {
	if len(fields) > 0 {
		res := r.AppState.DB.WithContext(ctx).Model(&entity.User{}).Where("id = ?", userId).Updates(fields)
		if res.Error != nil {
			log.Error().Err(res.Error).Str("user_id", userId).Msg("failed to update user")
			return nil, app_error.NewAppError(http.StatusInternalServerError, "unexpected error occured when updating user", "db-update")
		}
		if res.RowsAffected == 0 {
			return nil, app_error.NewAppError(http.StatusNotFound, "cannot find user", "user-id")
		}
	}

	return r.FindByID(ctx, userId)
}

func (r *UserRepo) DeleteUser(ctx context.Context, userId string) *app_error.AppError {
	res := r.AppState.DB.WithContext(ctx).Where("id = ?", userId).Delete(&entity.User{})
	if res.Error != nil {
		return app_error.NewAppError(http.StatusInternalServerError, "unexpected error occured when deleting user", "db-delete")
	}
	if res.RowsAffected == 0 {
		return app_error.NewAppError(http.StatusNotFound, "cannot find user", "user-id")
	}
	return nil
}
