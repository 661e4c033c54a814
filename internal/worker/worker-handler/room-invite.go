package worker_handler

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/queue"
	"github.com/xenn00/musori/internal/websocket"
)

func decodeInvite(raw jsoniter.RawMessage) (queue.RoomInvitePayload, error) {
	var payload queue.RoomInvitePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("invalid room invite payload: %w", err)
	}
	if payload.RoomID == "" || payload.InviteeID == "" {
		return payload, fmt.Errorf("room invite payload is missing room or invitee")
	}
	return payload, nil
}

// HandleRoomInviteNotice tells the invitee's open sockets about the invite. Nobody online is not a
// failure; they will see the room in their list next time.
func (wh *WorkerHandler) HandleRoomInviteNotice(raw jsoniter.RawMessage) error {
	payload, err := decodeInvite(raw)
	if err != nil {
		return err
	}

	inviter := payload.InviterNickname
	if inviter == "" {
		inviter = "Someone"
	}
	notice := websocket.NewNotice(payload.RoomID, fmt.Sprintf("%s invited you to %s", inviter, payload.RoomName))

	delivered := wh.Notifier.BroadcastToUser(payload.InviteeID, notice)
	log.Debug().Str("room_id", payload.RoomID).Str("invitee_id", payload.InviteeID).Int("connections", delivered).Msg("invite notice delivered")
	return nil
}

func (wh *WorkerHandler) HandleRoomInviteEmail(raw jsoniter.RawMessage) error {
	payload, err := decodeInvite(raw)
	if err != nil {
		return err
	}

	if wh.Mailer == nil {
		log.Debug().Str("room_id", payload.RoomID).Msg("smtp not configured, skipping invite email")
		return nil
	}
	return wh.Mailer.SendRoomInvite(payload)
}
