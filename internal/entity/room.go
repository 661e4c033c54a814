package entity

import (
	"slices"
	"time"
)

const (
	DefaultRoomID   = "general"
	SystemCreatorID = "system"
)

type Room struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `gorm:"not null;index" json:"created_by"`
	IsPublic    bool      `gorm:"not null" json:"is_public"`
	Revision    int64     `gorm:"not null" json:"revision"`
	Members     []string  `gorm:"-" json:"members"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RoomMember rows are keyed by (room, user), so a user can only be a member once.
type RoomMember struct {
	RoomID   string    `gorm:"primaryKey"`
	UserID   string    `gorm:"primaryKey;index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

func (r *Room) IsMember(userID string) bool {
	return slices.Contains(r.Members, userID)
}

// CanEnter reports whether userID may open the room.
func (r *Room) CanEnter(userID string) bool {
	if r.IsPublic {
		return true
	}
	return r.CreatedBy == userID || r.IsMember(userID)
}
