package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubestellar/console-assistant/pkg/assistant"
	"github.com/kubestellar/console-assistant/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetJob(t *testing.T) {
	s := newTestStore(t)

	finished := time.Now().UTC().Truncate(time.Second)
	job := &models.JobRecord{
		BackendID:  "ai-1",
		ModelID:    "granite-8b",
		TaskID:     "1",
		Query:      "create a redis deployment",
		JobID:      "j1",
		TaskOutput: "```yaml\nkind: Deployment\n```",
		CreatedAt:  finished.Add(-3 * time.Second),
		FinishedAt: &finished,
	}
	require.NoError(t, s.CreateJob(job))
	assert.NotEqual(t, uuid.Nil, job.ID)

	got, err := s.GetJob(job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ai-1", got.BackendID)
	assert.Equal(t, "j1", got.JobID)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, job.TaskOutput, got.TaskOutput)
	assert.Equal(t, models.VoteNone, got.Vote)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, 3*time.Second, got.Duration())

	byJob, err := s.GetJobByJobID("ai-1", "j1")
	require.NoError(t, err)
	require.NotNil(t, byJob)
	assert.Equal(t, job.ID, byJob.ID)
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetJob(uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.GetJobByJobID("ai-1", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListJobsNewestFirstWithLatestVote(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"j1", "j2", "j3"} {
		require.NoError(t, s.CreateJob(&models.JobRecord{
			BackendID: "ai-1", ModelID: "m", TaskID: "1", Query: "q", JobID: id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.CreateFeedback(&models.FeedbackRecord{BackendID: "ai-1", JobID: "j2", Vote: models.VoteUp, CreatedAt: base}))
	require.NoError(t, s.CreateFeedback(&models.FeedbackRecord{BackendID: "ai-1", JobID: "j2", Vote: models.VoteDown, CreatedAt: base.Add(time.Second)}))

	jobs, err := s.ListJobs(0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "j3", jobs[0].JobID)
	assert.Equal(t, "j2", jobs[1].JobID)
	assert.Equal(t, models.VoteDown, jobs[1].Vote)
	assert.Equal(t, models.VoteNone, jobs[2].Vote)

	limited, err := s.ListJobs(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	fb, err := s.GetJobFeedback("ai-1", "j2")
	require.NoError(t, err)
	require.Len(t, fb, 2)
	assert.Equal(t, models.VoteDown, fb[0].Vote)
}

func TestDeleteJobsBefore(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.CreateJob(&models.JobRecord{BackendID: "b", ModelID: "m", TaskID: "1", Query: "old", JobID: "old", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.CreateJob(&models.JobRecord{BackendID: "b", ModelID: "m", TaskID: "1", Query: "new", JobID: "new", CreatedAt: now}))
	require.NoError(t, s.CreateFeedback(&models.FeedbackRecord{BackendID: "b", JobID: "old", Vote: models.VoteUp}))

	n, err := s.DeleteJobsBefore(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	jobs, err := s.ListJobs(0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "new", jobs[0].JobID)

	fb, err := s.GetJobFeedback("b", "old")
	require.NoError(t, err)
	assert.Empty(t, fb)
}

func TestRecorder(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s)
	ctx := context.Background()
	started := time.Now().Add(-time.Second)

	require.NoError(t, r.RecordJob(ctx, assistant.JobOutcome{
		BackendID: "ai-1", ModelID: "m", TaskID: "1", Query: "q",
		Answer:  &assistant.Answer{JobID: "j1", TaskOutput: "done"},
		Started: started, Finished: time.Now(),
	}))
	require.NoError(t, r.RecordJob(ctx, assistant.JobOutcome{
		BackendID: "ai-1", ModelID: "m", TaskID: "1", Query: "broken",
		Err: errors.New("status: 500"), Started: started.Add(time.Millisecond),
	}))
	require.NoError(t, r.RecordFeedback(ctx, "ai-1", "j1", true))

	jobs, err := s.ListJobs(0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	failed := jobs[0]
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	assert.Equal(t, "status: 500", failed.Error)
	assert.Nil(t, failed.FinishedAt)

	ok := jobs[1]
	assert.Equal(t, "j1", ok.JobID)
	assert.Equal(t, "done", ok.TaskOutput)
	assert.Equal(t, models.VoteUp, ok.Vote)
}
