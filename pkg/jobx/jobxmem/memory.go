// Package jobxmem is an in-process jobx.Queue for tests and single-node
// development runs. Jobs do not survive a restart.
package jobxmem

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/errx"
	"github.com/Abraxas-365/keybridge/pkg/jobx"
	"github.com/google/uuid"
)

var memErrors = errx.NewRegistry("JOBX_MEM")

var ErrNotFound = memErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Job not found")

type scheduled struct {
	id    string
	runAt time.Time
}

type Queue struct {
	mu        sync.Mutex
	jobs      map[string]*jobx.JobInfo
	ready     map[string][]string
	scheduled map[string][]scheduled
	notify    chan struct{}
	now       func() time.Time
}

func New() *Queue {
	return &Queue{
		jobs:      make(map[string]*jobx.JobInfo),
		ready:     make(map[string][]string),
		scheduled: make(map[string][]scheduled),
		notify:    make(chan struct{}, 1),
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests to fast-forward
// scheduled jobs.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

func (q *Queue) store(job jobx.Job) *jobx.JobInfo {
	now := q.now().UTC()
	info := &jobx.JobInfo{
		ID:         uuid.NewString(),
		Type:       job.Type,
		Queue:      job.Queue,
		Payload:    job.Payload,
		Status:     jobx.JobStatusPending,
		MaxRetries: job.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	q.jobs[info.ID] = info
	return info
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Enqueue(_ context.Context, job jobx.Job) (string, error) {
	q.mu.Lock()
	info := q.store(job)
	q.ready[job.Queue] = append(q.ready[job.Queue], info.ID)
	q.mu.Unlock()

	q.wake()
	return info.ID, nil
}

func (q *Queue) EnqueueDelayed(_ context.Context, job jobx.Job, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	info := q.store(job)
	q.scheduled[job.Queue] = append(q.scheduled[job.Queue], scheduled{id: info.ID, runAt: info.CreatedAt.Add(delay)})
	return info.ID, nil
}

// GetJob returns a copy of the stored record.
func (q *Queue) GetJob(_ context.Context, jobID string) (*jobx.JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return nil, memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	cp := *info
	return &cp, nil
}

func (q *Queue) pop(queues []string) *jobx.JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, name := range queues {
		ids := q.ready[name]
		if len(ids) == 0 {
			continue
		}
		id := ids[0]
		q.ready[name] = ids[1:]

		info := q.jobs[id]
		info.Status = jobx.JobStatusActive
		info.Attempts++
		info.UpdatedAt = q.now().UTC()
		cp := *info
		return &cp
	}
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	if info := q.pop(queues); info != nil {
		return info, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return nil, nil
		case <-q.notify:
			if info := q.pop(queues); info != nil {
				return info, nil
			}
		}
	}
}

func (q *Queue) update(jobID string, fn func(*jobx.JobInfo)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	fn(info)
	info.UpdatedAt = q.now().UTC()
	return nil
}

func (q *Queue) Complete(_ context.Context, jobID string, result []byte) error {
	return q.update(jobID, func(info *jobx.JobInfo) {
		info.Status = jobx.JobStatusCompleted
		info.Result = result
	})
}

func (q *Queue) Fail(_ context.Context, jobID string, errMsg string) (bool, error) {
	var retry bool
	err := q.update(jobID, func(info *jobx.JobInfo) {
		retry = info.Attempts < info.MaxRetries
		if retry {
			info.Status = jobx.JobStatusRetrying
		} else {
			info.Status = jobx.JobStatusFailed
		}
		info.Error = errMsg
	})
	return retry, err
}

func (q *Queue) Retry(_ context.Context, jobID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return memErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	q.scheduled[info.Queue] = append(q.scheduled[info.Queue], scheduled{id: jobID, runAt: q.now().Add(delay)})
	return nil
}

func (q *Queue) PromoteScheduled(_ context.Context, queues []string) error {
	q.mu.Lock()
	now := q.now()
	promoted := 0
	for _, name := range queues {
		var keep []scheduled
		for _, s := range q.scheduled[name] {
			if !s.runAt.After(now) {
				q.ready[name] = append(q.ready[name], s.id)
				promoted++
				continue
			}
			keep = append(keep, s)
		}
		q.scheduled[name] = keep
	}
	q.mu.Unlock()

	if promoted > 0 {
		q.wake()
	}
	return nil
}

// Pending returns queued and scheduled job records of the given type.
func (q *Queue) Pending(jobType string) []jobx.JobInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []jobx.JobInfo
	for _, info := range q.jobs {
		if info.Type == jobType && info.Status == jobx.JobStatusPending {
			out = append(out, *info)
		}
	}
	return out
}
