package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the terminal state of a recorded query
type JobStatus string

const (
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Vote is a feedback vote on an answer
type Vote int

const (
	VoteDown Vote = -1
	VoteNone Vote = 0
	VoteUp   Vote = 1
)

// VoteFor converts a thumbs-up flag to a Vote
func VoteFor(good bool) Vote {
	if good {
		return VoteUp
	}
	return VoteDown
}

// JobRecord is one query sent to an assistant backend
type JobRecord struct {
	ID         uuid.UUID  `json:"id"`
	BackendID  string     `json:"backend_id"`
	ModelID    string     `json:"model_id"`
	TaskID     string     `json:"task_id"`
	Query      string     `json:"query"`
	JobID      string     `json:"job_id,omitempty"`
	Status     JobStatus  `json:"status"`
	TaskOutput string     `json:"task_output,omitempty"`
	Error      string     `json:"error,omitempty"`
	Vote       Vote       `json:"vote"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the job took, or 0 if it never finished
func (j JobRecord) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.CreatedAt)
}

// FeedbackRecord is one vote sent to a backend's feedback endpoint
type FeedbackRecord struct {
	ID        uuid.UUID `json:"id"`
	BackendID string    `json:"backend_id"`
	JobID     string    `json:"job_id"`
	Vote      Vote      `json:"vote"`
	CreatedAt time.Time `json:"created_at"`
}
