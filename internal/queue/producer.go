package queue

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	PriorityQueueKey = "relay:jobs"
	DeadLetterKey    = "relay:jobs:dlq"
)

type Producer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Score orders jobs by the second they become ready, then by priority within that second.
func Score(readyAt int64, priority int) float64 {
	priority = max(0, min(9, priority))
	return float64(readyAt*10 + int64(9-priority))
}

// ReadyBound is the highest score that is ready at now.
func ReadyBound(now int64) float64 {
	return float64(now*10 + 9)
}

type RedisProducer struct {
	Redis *redis.Client
}

func NewProducer(redis *redis.Client) Producer {
	return &RedisProducer{Redis: redis}
}

func (p *RedisProducer) Enqueue(ctx context.Context, job Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.Redis.ZAdd(ctx, PriorityQueueKey, redis.Z{
		Score:  Score(job.CreatedAt, job.Priority),
		Member: jobBytes,
	}).Err()
}

// InlineProducer runs jobs in a goroutine of the calling process. It is used when no Redis is
// configured, so there is no retry and no dead-letter queue.
type InlineProducer struct {
	handle func(ctx context.Context, job Job) error
}

func NewInlineProducer(handle func(ctx context.Context, job Job) error) Producer {
	return &InlineProducer{handle: handle}
}

func (p *InlineProducer) Enqueue(ctx context.Context, job Job) error {
	go func() {
		if err := p.handle(context.WithoutCancel(ctx), job); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Str("type", job.Type).Msg("inline job failed")
		}
	}()
	return nil
}
