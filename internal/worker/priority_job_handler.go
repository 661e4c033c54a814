package worker

import (
	"context"
	"fmt"

	"github.com/xenn00/musori/internal/queue"
	worker_handler "github.com/xenn00/musori/internal/worker/worker-handler"
)

func HandleJob(_ context.Context, job queue.Job, handler *worker_handler.WorkerHandler) error {
	switch job.Type {
	case queue.JobRoomInviteNotice:
		return handler.HandleRoomInviteNotice(job.Payload)
	case queue.JobRoomInviteEmail:
		return handler.HandleRoomInviteEmail(job.Payload)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}
