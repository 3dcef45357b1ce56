package jobxredis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/jobx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements jobx.Queue on Redis lists (ready jobs), sorted sets
// (scheduled jobs) and plain keys (job records).
type RedisQueue struct {
	rdb         redis.UniversalClient
	prefix      string
	finishedTTL time.Duration
}

type Option func(*RedisQueue)

// WithKeyPrefix namespaces every key. Defaults to "jobx".
func WithKeyPrefix(prefix string) Option {
	return func(q *RedisQueue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

// WithFinishedTTL expires completed and permanently failed job records.
// Zero keeps them forever.
func WithFinishedTTL(ttl time.Duration) Option {
	return func(q *RedisQueue) { q.finishedTTL = ttl }
}

func NewRedisQueue(rdb redis.UniversalClient, opts ...Option) *RedisQueue {
	q := &RedisQueue{rdb: rdb, prefix: "jobx", finishedTTL: 24 * time.Hour}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *RedisQueue) queueKey(name string) string     { return q.prefix + ":queue:" + name }
func (q *RedisQueue) scheduledKey(name string) string { return q.prefix + ":scheduled:" + name }
func (q *RedisQueue) jobKey(id string) string         { return q.prefix + ":job:" + id }

func newInfo(job jobx.Job) jobx.JobInfo {
	now := time.Now().UTC()
	return jobx.JobInfo{
		ID:         uuid.NewString(),
		Type:       job.Type,
		Queue:      job.Queue,
		Payload:    job.Payload,
		Status:     jobx.JobStatusPending,
		MaxRetries: job.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job jobx.Job) (string, error) {
	info := newInfo(job)
	data, err := json.Marshal(info)
	if err != nil {
		return "", redisErrors.NewWithCause(ErrMarshal, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, q.jobKey(info.ID), data, 0)
	pipe.LPush(ctx, q.queueKey(job.Queue), info.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).WithDetail("queue", job.Queue)
	}
	return info.ID, nil
}

func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job jobx.Job, delay time.Duration) (string, error) {
	info := newInfo(job)
	data, err := json.Marshal(info)
	if err != nil {
		return "", redisErrors.NewWithCause(ErrMarshal, err)
	}

	runAt := info.CreatedAt.Add(delay)
	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, q.jobKey(info.ID), data, 0)
	pipe.ZAdd(ctx, q.scheduledKey(job.Queue), redis.Z{Score: float64(runAt.Unix()), Member: info.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).
			WithDetail("queue", job.Queue).
			WithDetail("delay", delay.String())
	}
	return info.ID, nil
}

func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	data, err := q.rdb.Get(ctx, q.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, redisErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrGetJob, err).WithDetail("job_id", jobID)
	}

	var info jobx.JobInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("job_id", jobID)
	}
	return &info, nil
}

func (q *RedisQueue) save(ctx context.Context, info *jobx.JobInfo, ttl time.Duration, code *errx.ErrorCode) error {
	info.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(info)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job_id", info.ID)
	}
	if err := q.rdb.Set(ctx, q.jobKey(info.ID), data, ttl).Err(); err != nil {
		return redisErrors.NewWithCause(code, err).WithDetail("job_id", info.ID)
	}
	return nil
}

// Dequeue blocks up to timeout for a ready job. A nil job with a nil error
// means nothing was available.
func (q *RedisQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = q.queueKey(name)
	}

	result, err := q.rdb.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) || ctx.Err() != nil {
		return nil, nil
	}
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrDequeue, err)
	}

	// result is [key, id]
	info, err := q.GetJob(ctx, result[1])
	if err != nil {
		return nil, err
	}
	info.Status = jobx.JobStatusActive
	info.Attempts++
	if err := q.save(ctx, info, 0, ErrDequeue); err != nil {
		return nil, err
	}
	return info, nil
}

func (q *RedisQueue) Complete(ctx context.Context, jobID string, result []byte) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	info.Status = jobx.JobStatusCompleted
	info.Result = result
	return q.save(ctx, info, q.finishedTTL, ErrComplete)
}

// Fail records the error and reports whether attempts remain.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, errMsg string) (bool, error) {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}

	retry := info.Attempts < info.MaxRetries
	ttl := time.Duration(0)
	if retry {
		info.Status = jobx.JobStatusRetrying
	} else {
		info.Status = jobx.JobStatusFailed
		ttl = q.finishedTTL
	}
	info.Error = errMsg

	if err := q.save(ctx, info, ttl, ErrFail); err != nil {
		return false, err
	}
	return retry, nil
}

func (q *RedisQueue) Retry(ctx context.Context, jobID string, delay time.Duration) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	runAt := time.Now().UTC().Add(delay)
	if err := q.rdb.ZAdd(ctx, q.scheduledKey(info.Queue), redis.Z{
		Score:  float64(runAt.Unix()),
		Member: jobID,
	}).Err(); err != nil {
		return redisErrors.NewWithCause(ErrRetry, err).WithDetail("job_id", jobID)
	}
	return nil
}

// promoteScript moves due ids from the scheduled set to the ready list
// atomically.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(due) do
    redis.call('LPUSH', KEYS[2], id)
end
if #due > 0 then
    redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
return #due
`)

func (q *RedisQueue) PromoteScheduled(ctx context.Context, queues []string) error {
	now := strconv.FormatInt(time.Now().UTC().Unix(), 10)

	for _, name := range queues {
		err := promoteScript.Run(ctx, q.rdb, []string{q.scheduledKey(name), q.queueKey(name)}, now).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return redisErrors.NewWithCause(ErrPromote, err).WithDetail("queue", name)
		}
	}
	return nil
}
