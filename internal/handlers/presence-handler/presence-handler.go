package presence_handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xenn00/musori/internal/dtos/presence_dto"
	"github.com/xenn00/musori/internal/dtos/user_dto"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/handlers"
	"github.com/xenn00/musori/internal/presence"
)

type ProfileReader interface {
	GetProfile(ctx context.Context, userId, viewerId string) (*user_dto.UserResponse, *app_error.AppError)
}

// PresenceHandler is the HTTP side of presence for clients that cannot hold a socket open: they
// post a heartbeat periodically and delete their entry when they go away.
type PresenceHandler struct {
	Tracker  presence.Tracker
	Profiles ProfileReader
}

func NewPresenceHandler(tracker presence.Tracker, profiles ProfileReader) *PresenceHandler {
	return &PresenceHandler{Tracker: tracker, Profiles: profiles}
}

func (h *PresenceHandler) ListOnline(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	entries := h.Tracker.Online(r.Context())
	return handlers.Respond(w, r, http.StatusOK, "online users fetched", presence_dto.NewPresenceList(entries))
}

func (h *PresenceHandler) GetPresence(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	entry, ok := h.Tracker.Get(r.Context(), chi.URLParam(r, "userId"))
	if !ok {
		return app_error.NewAppError(http.StatusNotFound, "user is not present", "user-id")
	}
	return handlers.Respond(w, r, http.StatusOK, "presence fetched", presence_dto.NewPresenceResponse(entry))
}

// Heartbeat refreshes the caller, registering them first when they have no entry.
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	ctx := r.Context()
	if !h.Tracker.Heartbeat(ctx, userID) {
		profile, err := h.Profiles.GetProfile(ctx, userID, userID)
		if err != nil {
			return err
		}
		h.Tracker.Register(ctx, userID, profile.Nickname, profile.Email)
	}

	entry, ok := h.Tracker.Get(ctx, userID)
	if !ok {
		return app_error.NewAppError(http.StatusServiceUnavailable, "presence is unavailable", "presence")
	}
	return handlers.Respond(w, r, http.StatusOK, "heartbeat recorded", presence_dto.NewPresenceResponse(entry))
}

func (h *PresenceHandler) Leave(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	h.Tracker.Unregister(r.Context(), userID)
	return handlers.Respond[any](w, r, http.StatusOK, "presence removed", nil)
}
