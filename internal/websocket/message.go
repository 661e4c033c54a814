package websocket

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event names on the wire.
const (
	EventChatMessage = "chat message"
	EventNotice      = "notice"
	EventUserList    = "user list"
	EventError       = "error"
	EventHeartbeat   = "heartbeat"
)

// OutgoingEvent is the envelope of every server to client frame.
type OutgoingEvent struct {
	Event     string `json:"event"`
	RoomID    string `json:"room_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type IncomingEvent struct {
	Event string              `json:"event"`
	Data  jsoniter.RawMessage `json:"data,omitempty"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

type NoticePayload struct {
	Text string `json:"text"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func NewEvent(event, roomID string, data any) OutgoingEvent {
	return OutgoingEvent{
		Event:     event,
		RoomID:    roomID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NewNotice(roomID, text string) OutgoingEvent {
	return NewEvent(EventNotice, roomID, NoticePayload{Text: text})
}

func NewErrorEvent(roomID string, code int, message, field string) OutgoingEvent {
	return NewEvent(EventError, roomID, ErrorPayload{Code: code, Message: message, Field: field})
}
