package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentdir/iconfetch/internal/assets"
)

// JobStore provides an in-memory assets.JobStore for development/testing.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]assets.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]assets.Job),
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job assets.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJob updates the status and, for terminal states, the result of a job.
func (s *JobStore) UpdateJob(
	_ context.Context,
	jobID string,
	status assets.JobStatus,
	errText string,
	result *assets.JobResult,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = status
	job.ErrorText = errText
	if result != nil {
		job.Result = result
	}
	now := time.Now().UTC()
	if status == assets.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if isTerminal(status) {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (assets.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return assets.Job{}, errors.New("job not found")
	}
	return job, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status assets.JobStatus) bool {
	switch status {
	case assets.JobStatusSucceeded, assets.JobStatusSkipped, assets.JobStatusFailed, assets.JobStatusCanceled:
		return true
	default:
		return false
	}
}
