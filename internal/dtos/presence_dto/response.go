package presence_dto

import (
	"time"

	"github.com/xenn00/musori/internal/presence"
)

type PresenceResponse struct {
	ID       string    `json:"id"`
	Nickname string    `json:"nickname"`
	LastSeen time.Time `json:"last_seen"`
	Online   bool      `json:"online"`
}

func NewPresenceResponse(e presence.Entry) PresenceResponse {
	return PresenceResponse{ID: e.ID, Nickname: e.Nickname, LastSeen: e.LastSeen, Online: e.Online}
}

func NewPresenceList(entries []presence.Entry) []PresenceResponse {
	out := make([]PresenceResponse, len(entries))
	for i, e := range entries {
		out[i] = NewPresenceResponse(e)
	}
	return out
}
