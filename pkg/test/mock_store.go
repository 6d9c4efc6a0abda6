package test

import (
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/kubestellar/console-assistant/pkg/models"
)

// MockStore is a mock implementation of store.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateJob(job *models.JobRecord) error {
	args := m.Called(job)
	return args.Error(0)
}

func (m *MockStore) GetJob(id uuid.UUID) (*models.JobRecord, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobRecord), args.Error(1)
}

func (m *MockStore) GetJobByJobID(backendID, jobID string) (*models.JobRecord, error) {
	args := m.Called(backendID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobRecord), args.Error(1)
}

func (m *MockStore) ListJobs(limit int) ([]models.JobRecord, error) {
	args := m.Called(limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobRecord), args.Error(1)
}

func (m *MockStore) DeleteJobsBefore(t time.Time) (int64, error) {
	args := m.Called(t)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) CreateFeedback(feedback *models.FeedbackRecord) error {
	args := m.Called(feedback)
	return args.Error(0)
}

func (m *MockStore) GetJobFeedback(backendID, jobID string) ([]models.FeedbackRecord, error) {
	args := m.Called(backendID, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FeedbackRecord), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
