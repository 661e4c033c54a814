package entity

import (
	"time"
)

const (
	MessageKindChat = "chat"
)

type Message struct {
	ID        string    `bson:"_id" json:"id"`
	RoomID    string    `bson:"room_id" json:"room_id"`
	Seq       uint64    `bson:"seq" json:"seq"`
	SenderID  string    `bson:"sender_id" json:"sender_id"`
	Nickname  string    `bson:"nickname" json:"nickname"`
	Text      string    `bson:"text" json:"text"`
	AvatarURL string    `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Kind      string    `bson:"kind" json:"kind"`
	Origin    string    `bson:"origin,omitempty" json:"origin,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}
