package entity

import (
	"encoding/json"
	"time"
)

type DLQJob struct {
	JobID     string          `bson:"_id" json:"job_id"`
	Type      string          `bson:"type" json:"type"`
	Payload   json.RawMessage `bson:"payload" json:"payload"`
	ErrorMsg  string          `bson:"error_msg" json:"error_msg"`
	Retry     int             `bson:"retry" json:"retry"`
	CreatedAt time.Time       `bson:"created_at" json:"created_at"`
	ExpireAt  time.Time       `bson:"expired_at" json:"expired_at"`
}
