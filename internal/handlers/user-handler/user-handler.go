package user_handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/dtos/user_dto"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/handlers"
	"github.com/xenn00/musori/internal/storage"
	user_service "github.com/xenn00/musori/internal/use-case/user-case"
)

const avatarFormField = "avatar"

// SessionCloser drops a user's live connections.
type SessionCloser interface {
	DisconnectUser(userID string) int
}

type UserHandler struct {
	Validate       *validator.Validate
	Service        user_service.UserServiceContract
	Avatars        storage.AvatarStore
	MaxAvatarBytes int64
	Sessions       SessionCloser
}

func NewUserHandler(service user_service.UserServiceContract, avatars storage.AvatarStore, maxAvatarBytes int64, sessions SessionCloser) *UserHandler {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = user_service.DefaultMaxAvatarBytes
	}
	return &UserHandler{
		Validate:       handlers.NewValidator(),
		Service:        service,
		Avatars:        avatars,
		MaxAvatarBytes: maxAvatarBytes,
		Sessions:       sessions,
	}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	resp, err := h.Service.GetProfile(r.Context(), userID, userID)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusOK, "profile fetched", resp)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	viewerID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	resp, err := h.Service.GetProfile(r.Context(), chi.URLParam(r, "userId"), viewerID)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusOK, "user fetched", resp)
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	var req user_dto.UpdateProfileRequest
	if err := handlers.DecodeAndValidate(r, h.Validate, &req); err != nil {
		return err
	}

	resp, err := h.Service.UpdateProfile(r.Context(), userID, req)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusOK, "profile updated", resp)
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	if err := h.Service.DeleteAccount(r.Context(), userID); err != nil {
		return err
	}
	// open sockets would otherwise heartbeat the deleted user back online
	if h.Sessions != nil {
		h.Sessions.DisconnectUser(userID)
	}
	return handlers.Respond[any](w, r, http.StatusOK, "account deleted", nil)
}

// UploadAvatar accepts either a multipart form with an "avatar" file or the raw image as the body.
func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxAvatarBytes+(1<<20))
		file, _, formErr := r.FormFile(avatarFormField)
		if formErr != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(formErr, &tooLarge) {
				return app_error.NewAppError(http.StatusRequestEntityTooLarge, "avatar is too large", avatarFormField)
			}
			return app_error.NewAppError(http.StatusBadRequest, "missing avatar file", avatarFormField)
		}
		defer file.Close()
		src = file
	}

	// one byte over the limit is enough for the service to reject it
	data, readErr := io.ReadAll(io.LimitReader(src, h.MaxAvatarBytes+1))
	if readErr != nil {
		return app_error.NewAppError(http.StatusBadRequest, "failed to read avatar", avatarFormField)
	}

	resp, err := h.Service.UploadAvatar(r.Context(), userID, data)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusOK, "avatar updated", resp)
}

// ServeAvatar streams a stored avatar. It is mounted outside authentication.
func (h *UserHandler) ServeAvatar(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	if h.Avatars == nil {
		return app_error.NewAppError(http.StatusNotFound, "avatar not found", "name")
	}

	rc, contentType, err := h.Avatars.Open(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			return app_error.NewAppError(http.StatusNotFound, "avatar not found", "name")
		}
		log.Error().Err(err).Msg("failed to open avatar")
		return app_error.NewAppError(http.StatusInternalServerError, "failed to read avatar", "name")
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn().Err(err).Msg("avatar stream interrupted")
	}
	return nil
}
