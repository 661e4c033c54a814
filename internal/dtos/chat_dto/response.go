package chat_dto

import (
	"time"

	"github.com/xenn00/musori/internal/entity"
)

type MessageResponse struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Seq       uint64    `json:"seq"`
	SenderID  string    `json:"sender_id"`
	Nickname  string    `json:"nickname"`
	Text      string    `json:"text"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMessageResponse(m entity.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Seq:       m.Seq,
		SenderID:  m.SenderID,
		Nickname:  m.Nickname,
		Text:      m.Text,
		AvatarURL: m.AvatarURL,
		Timestamp: m.Timestamp,
	}
}

type HistoryResponse struct {
	RoomID   string            `json:"room_id"`
	Messages []MessageResponse `json:"messages"`
}
