package user_dto

import (
	"time"

	"github.com/xenn00/musori/internal/entity"
)

type UserResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email,omitempty"`
	Nickname       string    `json:"nickname"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	StatusMessage  string    `json:"status_message,omitempty"`
	Theme          string    `json:"theme,omitempty"`
	ThemeColor     string    `json:"theme_color,omitempty"`
	NotifyInvites  *bool     `json:"notify_invites,omitempty"`
	NotifyMessages *bool     `json:"notify_messages,omitempty"`
	Online         bool      `json:"online"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewUserResponse renders u. Email and preferences are only included for the owner.
func NewUserResponse(u *entity.User, self, online bool) *UserResponse {
	resp := &UserResponse{
		ID:            u.ID,
		Nickname:      u.Nickname,
		AvatarURL:     u.AvatarURL,
		Bio:           u.Bio,
		StatusMessage: u.StatusMessage,
		Online:        online,
		CreatedAt:     u.CreatedAt,
	}
	if self {
		notifyInvites, notifyMessages := u.NotifyInvites, u.NotifyMessages
		resp.Email = u.Email
		resp.Theme = u.Theme
		resp.ThemeColor = u.ThemeColor
		resp.NotifyInvites = &notifyInvites
		resp.NotifyMessages = &notifyMessages
	}
	return resp
}
