package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/entity"
	"github.com/xenn00/musori/internal/queue"
)

// StartDLQWorker drains the dead-letter list into the dead-letter store.
func (wp *WorkerPool) StartDLQWorker(ctx context.Context) {
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()

		log.Info().Msg("DLQ worker started")
		for {
			if ctx.Err() != nil {
				log.Info().Msg("DLQ worker stopping")
				return
			}

			result, err := wp.Redis.BLPop(ctx, wp.DLQPollTimeout, queue.DeadLetterKey).Result()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Msg("DLQWorker pop failed")
					time.Sleep(wp.PollInterval)
				}
				continue
			}

			var job queue.Job
			if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
				log.Warn().Err(err).Msg("DLQWorker invalid job payload")
				continue
			}

			log.Error().
				Str("job_id", job.ID).
				Str("type", job.Type).
				Str("error", job.ErrorMsg).
				Msg("DLQ Job detected")

			wp.archive(context.WithoutCancel(ctx), job)
		}
	}()
}

func (wp *WorkerPool) archive(ctx context.Context, job queue.Job) {
	if wp.deadLetters == nil {
		return
	}

	record := entity.DLQJob{
		JobID:     job.ID,
		Type:      job.Type,
		Payload:   []byte(job.Payload),
		ErrorMsg:  job.ErrorMsg,
		Retry:     job.Retry,
		CreatedAt: time.Unix(job.CreatedAt, 0).UTC(),
		ExpireAt:  time.Unix(job.ExpireAt, 0).UTC(),
	}
	if err := wp.deadLetters.SaveDeadLetter(ctx, record); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to archive dead letter")
	}
}
