package queue

import (
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	JobRoomInviteNotice = "room_invite_notice"
	JobRoomInviteEmail  = "room_invite_email"
)

const (
	PriorityLow    = 1
	PriorityNormal = 5
	PriorityHigh   = 9
)

type Job struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	Payload   jsoniter.RawMessage `json:"payload"`
	Priority  int                 `json:"priority"`
	Retry     int                 `json:"retry"`
	MaxRetry  int                 `json:"max_retry"`
	ErrorMsg  string              `json:"error_msg,omitempty"`
	CreatedAt int64               `json:"created_at"`
	ExpireAt  int64               `json:"expired_at"`
}

// NewJob builds a job that is ready now and gives up after ttl.
func NewJob(jobType string, payload any, priority, maxRetry int, ttl time.Duration) Job {
	now := time.Now()
	return Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   MustMarshal(payload),
		Priority:  priority,
		MaxRetry:  maxRetry,
		CreatedAt: now.Unix(),
		ExpireAt:  now.Add(ttl).Unix(),
	}
}

func MustMarshal(payload any) jsoniter.RawMessage {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil
	}

	return b
}

type RoomInvitePayload struct {
	RoomID          string `json:"room_id"`
	RoomName        string `json:"room_name"`
	InviterID       string `json:"inviter_id"`
	InviterNickname string `json:"inviter_nickname"`
	InviteeID       string `json:"invitee_id"`
	InviteeEmail    string `json:"invitee_email"`
}
