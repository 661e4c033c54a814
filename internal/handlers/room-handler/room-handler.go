package room_handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/xenn00/musori/internal/dtos/room_dto"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/handlers"
	room_service "github.com/xenn00/musori/internal/use-case/room-case"
)

// RoomSessions closes live room feeds once access is gone.
type RoomSessions interface {
	DisconnectFromRoom(roomID, userID string) int
	CloseRoom(roomID string) int
}

type RoomHandler struct {
	Validate *validator.Validate
	Service  room_service.RoomServiceContract
	Sessions RoomSessions
}

// NewRoomHandler builds the room endpoints. sessions may be nil.
func NewRoomHandler(service room_service.RoomServiceContract, sessions RoomSessions) *RoomHandler {
	return &RoomHandler{
		Validate: handlers.NewValidator(),
		Service:  service,
		Sessions: sessions,
	}
}

func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	var req room_dto.CreateRoomRequest
	if err := handlers.DecodeAndValidate(r, h.Validate, &req); err != nil {
		return err
	}

	resp, err := h.Service.CreateRoom(r.Context(), req, userID)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusCreated, "room created", resp)
}

func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	resp, err := h.Service.ListRooms(r.Context(), userID)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusOK, "rooms fetched", resp)
}

func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	resp, err := h.Service.GetRoom(r.Context(), chi.URLParam(r, "roomId"), userID)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusOK, "room fetched", resp)
}

func (h *RoomHandler) UpdateRoom(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	var req room_dto.UpdateRoomRequest
	if err := handlers.DecodeAndValidate(r, h.Validate, &req); err != nil {
		return err
	}

	resp, err := h.Service.UpdateRoom(r.Context(), chi.URLParam(r, "roomId"), userID, req)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusOK, "room updated", resp)
}

func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	roomID := chi.URLParam(r, "roomId")
	if err := h.Service.DeleteRoom(r.Context(), roomID, userID); err != nil {
		return err
	}
	if h.Sessions != nil {
		h.Sessions.CloseRoom(roomID)
	}
	return handlers.Respond[any](w, r, http.StatusOK, "room deleted", nil)
}

func (h *RoomHandler) Invite(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	var req room_dto.InviteRequest
	if err := handlers.DecodeAndValidate(r, h.Validate, &req); err != nil {
		return err
	}

	resp, err := h.Service.InviteByEmail(r.Context(), chi.URLParam(r, "roomId"), userID, req)
	if err != nil {
		return err
	}

	msg := "user invited"
	if !resp.Added {
		msg = "user is already a member"
	}
	return handlers.Respond(w, r, http.StatusOK, msg, resp)
}

func (h *RoomHandler) Members(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	resp, err := h.Service.Members(r.Context(), chi.URLParam(r, "roomId"), userID)
	if err != nil {
		return err
	}
	return handlers.Respond(w, r, http.StatusOK, "members fetched", resp)
}

func (h *RoomHandler) RemoveMember(w http.ResponseWriter, r *http.Request) *app_error.AppError {
	userID, err := handlers.CallerID(r)
	if err != nil {
		return err
	}

	roomID, memberID := chi.URLParam(r, "roomId"), chi.URLParam(r, "userId")
	if err := h.Service.RemoveMember(r.Context(), roomID, userID, memberID); err != nil {
		return err
	}
	// public rooms stay open to former members
	if h.Sessions != nil {
		if _, err := h.Service.OpenRoom(r.Context(), roomID, memberID); err != nil {
			h.Sessions.DisconnectFromRoom(roomID, memberID)
		}
	}
	return handlers.Respond[any](w, r, http.StatusOK, "member removed", nil)
}
