// Package jobqueue implements C9: a Redis-list-backed FIFO job queue for
// indexing jobs, with pipelined batch enqueue, grounded on
// internal/skills/redis_cache.go's go-redis client construction.
package jobqueue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job is one unit of indexing work enqueued from the webhook intake.
type Job struct {
	ID       string         `json:"id"`
	URL      string         `json:"url"`
	Markdown string         `json:"markdown"`
	HTML     string         `json:"html"`
	Metadata map[string]any `json:"metadata"`
}

const listKey = "bridge:index-jobs"

// Config carries Redis connection settings.
type Config struct {
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// Queue wraps a Redis list as a FIFO: RPUSH on the producer side,
// BLPOP on the consumer side.
type Queue struct {
	client redis.UniversalClient
}

// New dials Redis and pings it before returning, matching
// NewRedisSkillsCache's eager-ping construction pattern.
func New(cfg Config) (*Queue, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLSInsecureSkipVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("job queue redis ping: %w", err)
	}
	return &Queue{client: client}, nil
}

func (q *Queue) Close() error { return q.client.Close() }

// Enqueue pushes a single job, generating an ID if none is set.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, listKey, payload).Err(); err != nil {
		return "", fmt.Errorf("rpush job: %w", err)
	}
	return job.ID, nil
}

// EnqueueBatch pushes every job in one pipelined round trip, matching
// webhook_handlers.py's "Redis pipeline for atomic batch operations"
// comment (5-10x faster than one RPUSH per job).
func (q *Queue) EnqueueBatch(ctx context.Context, jobs []Job) ([]string, []error) {
	ids := make([]string, len(jobs))
	errs := make([]error, len(jobs))

	pipe := q.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(jobs))
	for i, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		ids[i] = job.ID
		payload, err := json.Marshal(job)
		if err != nil {
			errs[i] = fmt.Errorf("marshal job: %w", err)
			continue
		}
		cmds[i] = pipe.RPush(ctx, listKey, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		for i := range errs {
			if errs[i] == nil && cmds[i] != nil {
				if _, cmdErr := cmds[i].Result(); cmdErr != nil {
					errs[i] = cmdErr
				}
			}
		}
	}

	return ids, errs
}

// Dequeue blocks up to timeout waiting for the next job, returning nil
// with no error on timeout.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.client.BLPop(ctx, timeout, listKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blpop: %w", err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("unexpected blpop result shape: %v", res)
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}
