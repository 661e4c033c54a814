package worker_handler

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/xenn00/musori/internal/websocket"
	worker_service "github.com/xenn00/musori/internal/worker/worker-service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Notifier pushes an event to the live connections of one user.
type Notifier interface {
	BroadcastToUser(userID string, ev websocket.OutgoingEvent) int
}

type WorkerHandler struct {
	Notifier Notifier
	Mailer   worker_service.Mailer
}

// NewWorkerHandler wires job side effects. A nil mailer disables invite e-mails.
func NewWorkerHandler(notifier Notifier, mailer worker_service.Mailer) *WorkerHandler {
	return &WorkerHandler{
		Notifier: notifier,
		Mailer:   mailer,
	}
}
