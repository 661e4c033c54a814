package user_service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/dtos/user_dto"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/presence"
	room_repo "github.com/xenn00/musori/internal/repo/room"
	user_repo "github.com/xenn00/musori/internal/repo/user"
	"github.com/xenn00/musori/internal/storage"
	"github.com/xenn00/musori/state"
)

const DefaultMaxAvatarBytes = 5 << 20

type UserService struct {
	AppState       *state.AppState
	UserRepo       user_repo.UserRepoContract
	RoomRepo       room_repo.RoomRepoContract
	Presence       presence.Tracker
	Avatars        storage.AvatarStore
	MaxAvatarBytes int64
	PublicURL      string
}

func NewUserService(appState *state.AppState, tracker presence.Tracker, avatars storage.AvatarStore, maxAvatarBytes int64, publicURL string) UserServiceContract {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = DefaultMaxAvatarBytes
	}
	return &UserService{
		AppState:       appState,
		UserRepo:       user_repo.NewUserRepo(appState),
		RoomRepo:       room_repo.NewRoomRepo(appState),
		Presence:       tracker,
		Avatars:        avatars,
		MaxAvatarBytes: maxAvatarBytes,
		PublicURL:      strings.TrimRight(publicURL, "/"),
	}
}

// EnsureUser returns the stored user for identity, creating it on first sight. The nickname falls
// back to the local part of the e-mail address.
func (u *UserService) EnsureUser(ctx context.Context, identity entity.Identity) (*entity.User, *app_error.AppError) {
	if identity.UserID == "" {
		return nil, app_error.NewAppError(http.StatusUnauthorized, "token has no subject", "sub")
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	nickname := strings.TrimSpace(identity.Nickname)
	if nickname == "" {
		nickname, _, _ = strings.Cut(email, "@")
	}
	if nickname == "" {
		nickname = "user-" + identity.UserID[:min(6, len(identity.UserID))]
	}
	if email == "" {
		email = identity.UserID + "@users.invalid"
	}

	return u.UserRepo.FindOrCreate(ctx, entity.User{
		ID:            identity.UserID,
		Email:         email,
		Nickname:      nickname,
		Theme:         "system",
		NotifyInvites: true,
	})
}

func (u *UserService) GetProfile(ctx context.Context, userId, viewerId string) (*user_dto.UserResponse, *app_error.AppError) {
	user, err := u.UserRepo.FindByID(ctx, userId)
	if err != nil {
		return nil, err
	}
	return user_dto.NewUserResponse(user, userId == viewerId, u.isOnline(ctx, userId)), nil
}

func (u *UserService) UpdateProfile(ctx context.Context, userId string, req user_dto.UpdateProfileRequest) (*user_dto.UserResponse, *app_error.AppError) {
	user, err := u.UserRepo.UpdateUser(ctx, userId, req.Fields())
	if err != nil {
		return nil, err
	}

	if req.Nickname != nil && u.Presence != nil && u.Presence.IsOnline(ctx, userId) {
		u.Presence.Register(ctx, userId, user.Nickname, user.Email)
	}
	return user_dto.NewUserResponse(user, true, u.isOnline(ctx, userId)), nil
}

func (u *UserService) UploadAvatar(ctx context.Context, userId string, data []byte) (*user_dto.UserResponse, *app_error.AppError) {
	if u.Avatars == nil {
		return nil, app_error.NewAppError(http.StatusServiceUnavailable, "avatar storage is not configured", "avatar")
	}
	if len(data) == 0 {
		return nil, app_error.NewAppError(http.StatusBadRequest, "avatar file is empty", "avatar")
	}
	if int64(len(data)) > u.MaxAvatarBytes {
		return nil, app_error.NewAppError(http.StatusRequestEntityTooLarge, fmt.Sprintf("avatar must be at most %d bytes", u.MaxAvatarBytes), "avatar")
	}

	contentType, sniffErr := storage.DetectImageType(data)
	if sniffErr != nil {
		return nil, app_error.NewAppError(http.StatusUnsupportedMediaType, "avatar must be a png, jpeg, gif or webp image", "avatar")
	}

	current, err := u.UserRepo.FindByID(ctx, userId)
	if err != nil {
		return nil, err
	}

	name, saveErr := u.Avatars.Save(ctx, userId, contentType, data)
	if saveErr != nil {
		log.Error().Err(saveErr).Str("user_id", userId).Msg("failed to store avatar")
		return nil, app_error.NewAppError(http.StatusInternalServerError, "failed to store avatar", "avatar")
	}

	user, err := u.UserRepo.UpdateUser(ctx, userId, map[string]any{"avatar_url": u.PublicURL + "/avatars/" + name})
	if err != nil {
		u.removeAvatar(ctx, name)
		return nil, err
	}
	u.removeAvatar(ctx, storage.NameFromURL(current.AvatarURL))

	return user_dto.NewUserResponse(user, true, u.isOnline(ctx, userId)), nil
}

// DeleteAccount removes the user, every room membership they hold and their presence entry.
// Rooms the user created are kept.
func (u *UserService) DeleteAccount(ctx context.Context, userId string) *app_error.AppError {
	user, err := u.UserRepo.FindByID(ctx, userId)
	if err != nil {
		return err
	}
	if err := u.RoomRepo.RemoveUserFromAllRooms(ctx, userId); err != nil {
		return err
	}
	if err := u.UserRepo.DeleteUser(ctx, userId); err != nil {
		return err
	}
	if u.Presence != nil {
		u.Presence.Unregister(ctx, userId)
	}
	u.removeAvatar(ctx, storage.NameFromURL(user.AvatarURL))

	log.Info().Str("user_id", userId).Msg("account deleted")
	return nil
}

func (u *UserService) isOnline(ctx context.Context, userId string) bool {
	return u.Presence != nil && u.Presence.IsOnline(ctx, userId)
}

func (u *UserService) removeAvatar(ctx context.Context, name string) {
	if name == "" || u.Avatars == nil {
		return
	}
	if err := u.Avatars.Delete(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warn().Err(err).Str("name", name).Msg("failed to delete avatar")
	}
}
