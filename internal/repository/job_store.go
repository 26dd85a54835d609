package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/certchain-io/certchain-api/internal/models"
	appErrors "github.com/certchain-io/certchain-api/pkg/errors"
)

// JobStore holds batch jobs in memory. Jobs are short-lived coordination
// state, not records: issued certificates land in Postgres and on chain, so
// losing jobs on restart only loses in-flight progress views. Terminal jobs
// are evicted after a TTL to bound memory.
type JobStore struct {
	mu     sync.RWMutex
	jobs   map[string]*models.BatchJob
	ttl    time.Duration
	logger *zap.Logger
}

// NewJobStore constructs a job store with the given retention for terminal jobs.
func NewJobStore(ttl time.Duration, logger *zap.Logger) *JobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobStore{
		jobs:   make(map[string]*models.BatchJob),
		ttl:    ttl,
		logger: logger,
	}
}

// Create registers a validated job and returns its identifier.
func (s *JobStore) Create(job *models.BatchJob) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = models.BatchStatusValidated
	s.jobs[job.ID] = job
	return job.ID
}

// Get returns a deep snapshot of the job so pollers never observe the
// orchestrator's in-flight mutations.
func (s *JobStore) Get(id string) (*models.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "batch job not found")
	}
	return snapshotJob(job), nil
}

// StartProcessing atomically transitions a validated job to processing and
// hands the caller its own copy of the records. The orchestrator is the only
// writer for the duration of the run; a second start on the same job is
// rejected, and a terminal job cannot be re-run.
func (s *JobStore) StartProcessing(id string) ([]models.CertificateRecord, *models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "batch job not found")
	}
	switch job.Status {
	case models.BatchStatusProcessing:
		return nil, nil, appErrors.ErrJobProcessing
	case models.BatchStatusCompleted, models.BatchStatusFailed:
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "batch job already processed")
	}

	job.Status = models.BatchStatusProcessing
	records := make([]models.CertificateRecord, len(job.Records))
	copy(records, job.Records)
	return records, snapshotJob(job), nil
}

// SetProgress publishes the active phase counters for pollers.
func (s *JobStore) SetProgress(id string, progress models.PhaseProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[id]; ok {
		p := progress
		job.Progress = &p
	}
}

// Complete records the terminal result set and summary. The result set is
// immutable from this point on.
func (s *JobStore) Complete(id string, results []models.BatchRecordResult, summary *models.BatchSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	job.Status = models.BatchStatusCompleted
	job.Results = results
	job.Summary = summary
	job.Progress = nil
	job.CompletedAt = &now
}

// Fail marks the job failed with a systemic error message.
func (s *JobStore) Fail(id string, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	job.Status = models.BatchStatusFailed
	job.Error = message
	job.Progress = nil
	job.CompletedAt = &now
}

// StartEviction sweeps terminal jobs past their TTL until ctx is cancelled.
func (s *JobStore) StartEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.evictExpired(time.Now().UTC())
			}
		}
	}()
}

func (s *JobStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, job := range s.jobs {
		if !job.Terminal() || job.CompletedAt == nil {
			continue
		}
		if now.Sub(*job.CompletedAt) > s.ttl {
			delete(s.jobs, id)
			s.logger.Debug("evicted expired batch job", zap.String("jobId", id))
		}
	}
}

func snapshotJob(job *models.BatchJob) *models.BatchJob {
	clone := *job
	if job.Progress != nil {
		p := *job.Progress
		clone.Progress = &p
	}
	if job.Summary != nil {
		sum := *job.Summary
		clone.Summary = &sum
	}
	if job.Records != nil {
		clone.Records = make([]models.CertificateRecord, len(job.Records))
		copy(clone.Records, job.Records)
	}
	if job.Results != nil {
		clone.Results = make([]models.BatchRecordResult, len(job.Results))
		copy(clone.Results, job.Results)
	}
	return &clone
}
