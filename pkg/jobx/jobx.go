package jobx

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/keybridge/pkg/logx"
)

const (
	defaultQueue      = "default"
	defaultMaxRetries = 3
)

// HandlerFunc processes a job. A non-nil error fails the attempt and may
// schedule a retry.
type HandlerFunc func(ctx context.Context, job *JobInfo) error

// JobEnqueuer enqueues jobs for processing.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job Job) (string, error)
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) (string, error)
}

type JobStatusReader interface {
	GetJob(ctx context.Context, jobID string) (*JobInfo, error)
}

// JobProcessor is the backend side used by the worker loop.
type JobProcessor interface {
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*JobInfo, error)
	Complete(ctx context.Context, jobID string, result []byte) error
	Fail(ctx context.Context, jobID string, errMsg string) (retry bool, err error)
	Retry(ctx context.Context, jobID string, delay time.Duration) error
	PromoteScheduled(ctx context.Context, queues []string) error
}

// Queue stores jobs and hands them to workers.
type Queue interface {
	JobEnqueuer
	JobStatusReader
	JobProcessor
}

// Client enqueues jobs and runs the registered handlers against a Queue.
type Client struct {
	queue    Queue
	opts     WorkerOptions
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
	running  bool
}

// NewClient creates a job client over queue. Handlers are registered with
// Handle before Start.
func NewClient(queue Queue, options ...WorkerOption) *Client {
	opts := defaultWorkerOptions()
	for _, o := range options {
		o(&opts)
	}
	return &Client{
		queue:    queue,
		opts:     opts,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to a job type, replacing any previous one.
func (c *Client) Register(jobType string, handler HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[jobType] = handler
}

// Handle registers a handler receiving the decoded payload of type T.
func Handle[T any](c *Client, jobType string, fn func(ctx context.Context, payload T) error) {
	c.Register(jobType, func(ctx context.Context, job *JobInfo) error {
		var payload T
		if err := job.Decode(&payload); err != nil {
			return err
		}
		return fn(ctx, payload)
	})
}

// Enqueue adds job for immediate processing and returns its id.
func (c *Client) Enqueue(ctx context.Context, job Job) (string, error) {
	return c.queue.Enqueue(ctx, c.withDefaults(job))
}

// EnqueueDelayed makes the job visible to workers only after delay.
func (c *Client) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) (string, error) {
	return c.queue.EnqueueDelayed(ctx, c.withDefaults(job), delay)
}

// GetJob returns the stored state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobInfo, error) {
	return c.queue.GetJob(ctx, jobID)
}

func (c *Client) withDefaults(job Job) Job {
	if job.Queue == "" {
		if len(c.opts.Queues) > 0 {
			job.Queue = c.opts.Queues[0]
		} else {
			job.Queue = defaultQueue
		}
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = defaultMaxRetries
	}
	return job
}

// Start runs the scheduler and workers until ctx is cancelled, then waits
// up to ShutdownTimeout for in-flight jobs.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return jobxErrors.New(ErrAlreadyRunning)
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	logx.WithFields(logx.Fields{
		"workers": c.opts.Concurrency,
		"queues":  c.opts.Queues,
	}).Info("jobx: starting")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.schedulerLoop(ctx)
	}()

	for i := range c.opts.Concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.workerLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("jobx: all workers stopped")
	case <-time.After(c.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out with jobs in flight")
	}
	return nil
}

func (c *Client) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.queue.PromoteScheduled(ctx, c.opts.Queues); err != nil && ctx.Err() == nil {
				logx.WithError(err).Warn("jobx: promote scheduled failed")
			}
		}
	}
}

func (c *Client) workerLoop(ctx context.Context, id int) {
	for ctx.Err() == nil {
		job, err := c.queue.Dequeue(ctx, c.opts.Queues, c.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).WithField("worker", id).Warn("jobx: dequeue failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.PollInterval):
			}
			continue
		}
		if job == nil {
			continue
		}
		c.Process(ctx, job)
	}
}

// Process runs the handler for one dequeued job and records the outcome.
func (c *Client) Process(ctx context.Context, job *JobInfo) {
	c.mu.RLock()
	handler, ok := c.handlers[job.Type]
	c.mu.RUnlock()

	log := logx.WithFields(logx.Fields{"job_id": job.ID, "job_type": job.Type})

	if !ok {
		log.Warn("jobx: no handler registered")
		if _, err := c.queue.Fail(ctx, job.ID, "no handler registered for job type"); err != nil {
			log.WithError(err).Error("jobx: mark failed")
		}
		return
	}

	if err := handler(ctx, job); err != nil {
		log.WithError(err).Warn("jobx: job failed")

		retry, failErr := c.queue.Fail(ctx, job.ID, err.Error())
		if failErr != nil {
			log.WithError(failErr).Error("jobx: mark failed")
			return
		}
		if retry {
			if err := c.queue.Retry(ctx, job.ID, c.opts.DefaultRetryDelay); err != nil {
				log.WithError(err).Error("jobx: schedule retry")
			}
		}
		return
	}

	if err := c.queue.Complete(ctx, job.ID, nil); err != nil {
		log.WithError(err).Error("jobx: mark completed")
	}
}
