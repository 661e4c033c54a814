package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/entity"
	"github.com/xenn00/musori/internal/queue"
	worker_handler "github.com/xenn00/musori/internal/worker/worker-handler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultPollInterval   = 1 * time.Second
	defaultDLQPollTimeout = 5 * time.Second
	alertCooldown         = 10 * time.Minute
)

// DeadLetterStore keeps jobs that ran out of retries for later inspection.
type DeadLetterStore interface {
	SaveDeadLetter(ctx context.Context, job entity.DLQJob) error
}

type WorkerPool struct {
	Redis      *redis.Client
	WorkerNum  int
	JobChannel chan string

	// Backoff returns the delay before attempt number retry; it defaults to 5s doubling.
	Backoff        func(retry int) time.Duration
	PollInterval   time.Duration
	DLQPollTimeout time.Duration

	handler     *worker_handler.WorkerHandler
	deadLetters DeadLetterStore
	wg          sync.WaitGroup

	alertMu sync.Mutex
	alerts  map[string]time.Time
}

// NewWorkerPool builds a pool over the Redis priority queue. deadLetters may be nil, in which case
// dead jobs are only logged.
func NewWorkerPool(redis *redis.Client, workerNum int, handler *worker_handler.WorkerHandler, deadLetters DeadLetterStore) *WorkerPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	return &WorkerPool{
		Redis:          redis,
		WorkerNum:      workerNum,
		JobChannel:     make(chan string, 100),
		Backoff:        exponentialBackoff,
		PollInterval:   defaultPollInterval,
		DLQPollTimeout: defaultDLQPollTimeout,
		handler:        handler,
		deadLetters:    deadLetters,
		alerts:         make(map[string]time.Time),
	}
}

func exponentialBackoff(retry int) time.Duration {
	return time.Duration(5*(1<<retry)) * time.Second
}

func (wp *WorkerPool) Start(ctx context.Context) {
	log.Info().Msgf("Starting worker pool with %d workers", wp.WorkerNum)

	for i := 0; i < wp.WorkerNum; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.fetch(ctx)
	}()
}

// fetch moves ready jobs from the sorted set to the workers. ZRem decides ownership, so several
// nodes can poll the same queue.
func (wp *WorkerPool) fetch(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			log.Info().Msg("Stopping worker pool")
			return
		}

		payload, err := wp.claim(ctx, time.Now())
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Worker: failed to pop job")
		}
		if payload == "" {
			select {
			case <-ctx.Done():
			case <-time.After(wp.PollInterval):
			}
			continue
		}

		select {
		case wp.JobChannel <- payload:
		case <-ctx.Done():
			// put it back, it was claimed but never run
			wp.requeue(context.WithoutCancel(ctx), payload)
		}
	}
}

func (wp *WorkerPool) claim(ctx context.Context, now time.Time) (string, error) {
	for {
		result, err := wp.Redis.ZRangeByScore(ctx, queue.PriorityQueueKey, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatFloat(queue.ReadyBound(now.Unix()), 'f', -1, 64),
			Count: 1,
		}).Result()
		if err != nil || len(result) == 0 {
			return "", err
		}

		removed, err := wp.Redis.ZRem(ctx, queue.PriorityQueueKey, result[0]).Result()
		if err != nil {
			return "", err
		}
		if removed == 1 {
			return result[0], nil
		}
	}
}

func (wp *WorkerPool) requeue(ctx context.Context, payload string) {
	var job queue.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return
	}
	wp.schedule(ctx, job, time.Now())
}

func (wp *WorkerPool) schedule(ctx context.Context, job queue.Job, at time.Time) {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to marshal job")
		return
	}
	if err := wp.Redis.ZAdd(ctx, queue.PriorityQueueKey, redis.Z{
		Score:  queue.Score(at.Unix(), job.Priority),
		Member: jobBytes,
	}).Err(); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to schedule job")
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log.Info().Msgf("Worker %d started", id)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("Worker %d stopping", id)
			return
		case payload := <-wp.JobChannel:
			var job queue.Job
			if err := json.Unmarshal([]byte(payload), &job); err != nil {
				log.Warn().Err(err).Msgf("Worker %d: Failed to unmarshal job payload", id)
				continue
			}
			wp.process(context.WithoutCancel(ctx), job, time.Now())
		}
	}
}

// process runs one job and then retries it with backoff or moves it to the dead-letter list.
func (wp *WorkerPool) process(ctx context.Context, job queue.Job, now time.Time) {
	if job.ExpireAt > 0 && now.Unix() > job.ExpireAt {
		job.ErrorMsg = "job expired before it could run"
		wp.deadLetter(ctx, job)
		return
	}

	err := HandleJob(ctx, job, wp.handler)
	if err == nil {
		log.Debug().Str("job_id", job.ID).Str("type", job.Type).Msg("job done")
		return
	}

	job.Retry++
	job.ErrorMsg = err.Error()

	if job.Retry >= job.MaxRetry || (job.ExpireAt > 0 && now.Unix() > job.ExpireAt) {
		wp.deadLetter(ctx, job)
		return
	}

	delay := wp.Backoff(job.Retry)
	wp.schedule(ctx, job, now.Add(delay))
	log.Warn().Str("job_id", job.ID).Err(err).Msgf("Retrying in %v seconds (%d/%d)", delay.Seconds(), job.Retry, job.MaxRetry)
}

func (wp *WorkerPool) deadLetter(ctx context.Context, job queue.Job) {
	log.Error().Str("job_id", job.ID).Str("type", job.Type).Msg("Job moved to DLQ")

	dlqBytes, err := json.Marshal(job)
	if err == nil {
		err = wp.Redis.RPush(ctx, queue.DeadLetterKey, dlqBytes).Err()
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("failed to push job to DLQ")
	}

	wp.sendDLA(job)
}

// sendDLA logs a dead letter alert at most once per job type per cooldown.
func (wp *WorkerPool) sendDLA(job queue.Job) {
	wp.alertMu.Lock()
	defer wp.alertMu.Unlock()

	now := time.Now()
	if last, ok := wp.alerts[job.Type]; ok && now.Sub(last) < alertCooldown {
		return
	}

	log.Error().Str("job_id", job.ID).Str("type", job.Type).Str("error", job.ErrorMsg).Msg("Dead Letter Alert: Job failed permanently")
	wp.alerts[job.Type] = now
}

func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
	log.Info().Msg("All workers have stopped")
}
