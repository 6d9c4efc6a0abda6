package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/kubestellar/console-assistant/pkg/models"
)

// Store defines the interface for assistant history persistence
type Store interface {
	// Jobs
	CreateJob(job *models.JobRecord) error
	GetJob(id uuid.UUID) (*models.JobRecord, error)
	GetJobByJobID(backendID, jobID string) (*models.JobRecord, error)
	ListJobs(limit int) ([]models.JobRecord, error)
	DeleteJobsBefore(t time.Time) (int64, error)

	// Feedback
	CreateFeedback(feedback *models.FeedbackRecord) error
	GetJobFeedback(backendID, jobID string) ([]models.FeedbackRecord, error)

	// Lifecycle
	Close() error
}
