package store

import (
	"context"
	"log"

	"github.com/kubestellar/console-assistant/pkg/assistant"
	"github.com/kubestellar/console-assistant/pkg/models"
)

// Recorder writes session outcomes into a Store
type Recorder struct {
	store Store
}

// NewRecorder returns an assistant.Recorder backed by s
func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

var _ assistant.Recorder = (*Recorder)(nil)

func (r *Recorder) RecordJob(_ context.Context, outcome assistant.JobOutcome) error {
	job := &models.JobRecord{
		BackendID: outcome.BackendID,
		ModelID:   outcome.ModelID,
		TaskID:    outcome.TaskID,
		Query:     outcome.Query,
		JobID:     outcome.JobID,
		Status:    models.JobStatusCompleted,
		CreatedAt: outcome.Started,
	}
	if !outcome.Finished.IsZero() {
		finished := outcome.Finished
		job.FinishedAt = &finished
	}
	if outcome.Answer != nil {
		job.TaskOutput = outcome.Answer.TaskOutput
		if job.JobID == "" {
			job.JobID = outcome.Answer.JobID
		}
	}
	if outcome.Err != nil {
		job.Status = models.JobStatusFailed
		job.Error = outcome.Err.Error()
	}

	if err := r.store.CreateJob(job); err != nil {
		log.Printf("[store] failed to record job %s: %v", job.JobID, err)
		return err
	}
	return nil
}

func (r *Recorder) RecordFeedback(_ context.Context, backendID, jobID string, good bool) error {
	fb := &models.FeedbackRecord{
		BackendID: backendID,
		JobID:     jobID,
		Vote:      models.VoteFor(good),
	}
	if err := r.store.CreateFeedback(fb); err != nil {
		log.Printf("[store] failed to record feedback for job %s: %v", jobID, err)
		return err
	}
	return nil
}
