package room_dto

import (
	"time"

	"github.com/xenn00/musori/internal/dtos/user_dto"
	"github.com/xenn00/musori/internal/entity"
)

type RoomResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	IsPublic    bool      `json:"is_public"`
	Members     []string  `json:"members"`
	Revision    int64     `json:"revision"`
	IsOwner     bool      `json:"is_owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewRoomResponse(r *entity.Room, viewer string) RoomResponse {
	members := r.Members
	if members == nil {
		members = []string{}
	}
	return RoomResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		IsPublic:    r.IsPublic,
		Members:     members,
		Revision:    r.Revision,
		IsOwner:     r.CreatedBy == viewer,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type InviteResponse struct {
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id"`
	Added   bool   `json:"added"`
	Members int    `json:"members"`
}

type MembersResponse struct {
	RoomID  string                   `json:"room_id"`
	Members []*user_dto.UserResponse `json:"members"`
}
