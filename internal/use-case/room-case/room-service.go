package room_service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/dtos/room_dto"
	"github.com/xenn00/musori/internal/dtos/user_dto"
	"github.com/xenn00/musori/internal/entity"
	app_error "github.com/xenn00/musori/internal/errors"
	"github.com/xenn00/musori/internal/presence"
	"github.com/xenn00/musori/internal/queue"
	room_repo "github.com/xenn00/musori/internal/repo/room"
	user_repo "github.com/xenn00/musori/internal/repo/user"
	"github.com/xenn00/musori/state"
)

const inviteJobTTL = 24 * time.Hour

type RoomService struct {
	AppState *state.AppState
	RoomRepo room_repo.RoomRepoContract
	UserRepo user_repo.UserRepoContract
	Producer queue.Producer
	Presence presence.Tracker
}

func NewRoomService(appState *state.AppState, producer queue.Producer, tracker presence.Tracker) RoomServiceContract {
	return &RoomService{
		AppState: appState,
		RoomRepo: room_repo.NewRoomRepo(appState),
		UserRepo: user_repo.NewUserRepo(appState),
		Producer: producer,
		Presence: tracker,
	}
}

func (s *RoomService) EnsureDefaultRoom(ctx context.Context) *app_error.AppError {
	_, err := s.RoomRepo.FindRoomByID(ctx, entity.DefaultRoomID)
	if err == nil {
		return nil
	}
	if err.Code != http.StatusNotFound {
		return err
	}

	room := &entity.Room{
		ID:          entity.DefaultRoomID,
		Name:        entity.DefaultRoomID,
		Description: "Default chat room",
		CreatedBy:   entity.SystemCreatorID,
		IsPublic:    true,
	}
	if err := s.RoomRepo.CreateRoom(ctx, room); err != nil && err.Code != http.StatusConflict {
		return err
	}
	log.Info().Str("room_id", room.ID).Msg("default room ready")
	return nil
}

func (s *RoomService) CreateRoom(ctx context.Context, req room_dto.CreateRoomRequest, userId string) (*room_dto.RoomResponse, *app_error.AppError) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, app_error.NewAppError(http.StatusBadRequest, "room name is required", "name")
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	room := &entity.Room{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   userId,
		IsPublic:    isPublic,
		Members:     []string{userId},
	}
	if err := s.RoomRepo.CreateRoom(ctx, room); err != nil {
		return nil, err
	}

	log.Info().Str("room_id", room.ID).Str("created_by", userId).Bool("is_public", isPublic).Msg("room created")
	resp := room_dto.NewRoomResponse(room, userId)
	return &resp, nil
}

func (s *RoomService) ListRooms(ctx context.Context, userId string) ([]room_dto.RoomResponse, *app_error.AppError) {
	rooms, err := s.RoomRepo.ListVisibleRooms(ctx, userId)
	if err != nil {
		return nil, err
	}

	resp := make([]room_dto.RoomResponse, 0, len(rooms))
	for i := range rooms {
		resp = append(resp, room_dto.NewRoomResponse(&rooms[i], userId))
	}
	return resp, nil
}

// OpenRoom loads the room and checks that userId may enter it.
func (s *RoomService) OpenRoom(ctx context.Context, roomId, userId string) (*entity.Room, *app_error.AppError) {
	room, err := s.RoomRepo.FindRoomByID(ctx, roomId)
	if err != nil {
		return nil, err
	}
	if !room.CanEnter(userId) {
		return nil, app_error.NewAppError(http.StatusForbidden, "private room, you need an invite to enter", "room-id")
	}
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, roomId, userId string) (*room_dto.RoomResponse, *app_error.AppError) {
	room, err := s.OpenRoom(ctx, roomId, userId)
	if err != nil {
		return nil, err
	}
	resp := room_dto.NewRoomResponse(room, userId)
	return &resp, nil
}

func (s *RoomService) UpdateRoom(ctx context.Context, roomId, userId string, req room_dto.UpdateRoomRequest) (*room_dto.RoomResponse, *app_error.AppError) {
	room, err := s.RoomRepo.FindRoomByID(ctx, roomId)
	if err != nil {
		return nil, err
	}
	if room.CreatedBy != userId {
		return nil, app_error.NewAppError(http.StatusForbidden, "only the room owner can change its settings", "room-owner")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, app_error.NewAppError(http.StatusBadRequest, "room name is required", "name")
	}
	var expected int64
	if req.Revision != nil {
		expected = *req.Revision
	}

	updated, err := s.RoomRepo.UpdateRoomSettings(ctx, entity.Room{
		ID:          roomId,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		IsPublic:    req.IsPublic,
	}, expected)
	if err != nil {
		return nil, err
	}

	resp := room_dto.NewRoomResponse(updated, userId)
	return &resp, nil
}

func (s *RoomService) DeleteRoom(ctx context.Context, roomId, userId string) *app_error.AppError {
	if roomId == entity.DefaultRoomID {
		return app_error.NewAppError(http.StatusForbidden, "the default room cannot be deleted", "room-id")
	}
	room, err := s.RoomRepo.FindRoomByID(ctx, roomId)
	if err != nil {
		return err
	}
	if room.CreatedBy != userId {
		return app_error.NewAppError(http.StatusForbidden, "only the room owner can delete it", "room-owner")
	}

	if err := s.RoomRepo.DeleteRoom(ctx, roomId); err != nil {
		return err
	}
	log.Info().Str("room_id", roomId).Str("deleted_by", userId).Msg("room deleted")
	return nil
}

func (s *RoomService) InviteByEmail(ctx context.Context, roomId, inviterId string, req room_dto.InviteRequest) (*room_dto.InviteResponse, *app_error.AppError) {
	room, err := s.OpenRoom(ctx, roomId, inviterId)
	if err != nil {
		return nil, err
	}

	invitee, err := s.UserRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, err
	}

	added, err := s.RoomRepo.AddMember(ctx, roomId, invitee.ID)
	if err != nil {
		return nil, err
	}

	members := len(room.Members)
	if added {
		members++
		s.enqueueInvite(ctx, room, inviterId, invitee)
	}

	return &room_dto.InviteResponse{
		RoomID:  roomId,
		UserID:  invitee.ID,
		Added:   added,
		Members: members,
	}, nil
}

func (s *RoomService) enqueueInvite(ctx context.Context, room *entity.Room, inviterId string, invitee *entity.User) {
	if s.Producer == nil {
		return
	}

	payload := queue.RoomInvitePayload{
		RoomID:       room.ID,
		RoomName:     room.Name,
		InviterID:    inviterId,
		InviteeID:    invitee.ID,
		InviteeEmail: invitee.Email,
	}
	if inviter, err := s.UserRepo.FindByID(ctx, inviterId); err == nil {
		payload.InviterNickname = inviter.Nickname
	}

	jobs := []queue.Job{queue.NewJob(queue.JobRoomInviteNotice, payload, queue.PriorityHigh, 3, inviteJobTTL)}
	if invitee.NotifyInvites && invitee.Email != "" {
		jobs = append(jobs, queue.NewJob(queue.JobRoomInviteEmail, payload, queue.PriorityLow, 5, inviteJobTTL))
	}
	for _, job := range jobs {
		if err := s.Producer.Enqueue(ctx, job); err != nil {
			log.Warn().Err(err).Str("job_type", job.Type).Str("room_id", room.ID).Msg("failed to enqueue invite job")
		}
	}
}

// RemoveMember lets the owner remove anyone but themselves, and lets a member leave.
func (s *RoomService) RemoveMember(ctx context.Context, roomId, actorId, userId string) *app_error.AppError {
	room, err := s.RoomRepo.FindRoomByID(ctx, roomId)
	if err != nil {
		return err
	}

	switch {
	case userId == room.CreatedBy:
		return app_error.NewAppError(http.StatusBadRequest, "the room owner cannot leave the room", "user-id")
	case actorId != room.CreatedBy && actorId != userId:
		return app_error.NewAppError(http.StatusForbidden, "only the room owner can remove other members", "room-owner")
	}

	removed, err := s.RoomRepo.RemoveMember(ctx, roomId, userId)
	if err != nil {
		return err
	}
	if !removed {
		return app_error.NewAppError(http.StatusNotFound, "user is not a member of this room", "user-id")
	}
	return nil
}

func (s *RoomService) Members(ctx context.Context, roomId, userId string) (*room_dto.MembersResponse, *app_error.AppError) {
	room, err := s.OpenRoom(ctx, roomId, userId)
	if err != nil {
		return nil, err
	}

	users, err := s.UserRepo.FindByIDs(ctx, room.Members)
	if err != nil {
		return nil, err
	}

	members := make([]*user_dto.UserResponse, 0, len(users))
	for i := range users {
		online := s.Presence != nil && s.Presence.IsOnline(ctx, users[i].ID)
		members = append(members, user_dto.NewUserResponse(&users[i], users[i].ID == userId, online))
	}
	return &room_dto.MembersResponse{RoomID: roomId, Members: members}, nil
}
