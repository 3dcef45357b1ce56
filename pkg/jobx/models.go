package jobx

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// Job is a unit of work to enqueue.
type Job struct {
	Type    string          `json:"type"`
	Queue   string          `json:"queue"`
	Payload json.RawMessage `json:"payload"`

	// MaxRetries defaults to 3 when zero.
	MaxRetries int `json:"max_retries"`
}

// NewJob marshals payload into a Job of the given type.
func NewJob(jobType, queue string, payload any) (Job, error) {
	if jobType == "" {
		return Job{}, jobxErrors.New(ErrInvalidJob).WithDetail("reason", "empty type")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, jobxErrors.NewWithCause(ErrInvalidJob, err).WithDetail("type", jobType)
	}
	return Job{Type: jobType, Queue: queue, Payload: raw}, nil
}

// JobInfo is a job as stored by the backend.
type JobInfo struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	MaxRetries int             `json:"max_retries"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Decode unmarshals the job payload into v.
func (j *JobInfo) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return jobxErrors.NewWithCause(ErrDecodePayload, err).
			WithDetail("job_id", j.ID).
			WithDetail("type", j.Type)
	}
	return nil
}
