package entity

import (
	"time"
)

type User struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	Nickname       string    `gorm:"not null" json:"nickname"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	StatusMessage  string    `json:"status_message,omitempty"`
	Theme          string    `json:"theme,omitempty"`
	ThemeColor     string    `json:"theme_color,omitempty"`
	NotifyInvites  bool      `gorm:"not null" json:"notify_invites"`
	NotifyMessages bool      `gorm:"not null" json:"notify_messages"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
