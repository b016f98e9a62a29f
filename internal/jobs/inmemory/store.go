package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-relay/internal/jobs"
)

// DefaultMaxJobs bounds how many jobs a Store remembers.
const DefaultMaxJobs = 10000

// Store keeps job status for the api server's in-process relay. Callers always
// get copies. Once MaxJobs is reached the oldest job is forgotten to make room.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*jobs.ParseStatementJob
	maxJobs int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxJobs overrides DefaultMaxJobs; n <= 0 means unbounded.
func WithMaxJobs(n int) StoreOption {
	return func(s *Store) { s.maxJobs = n }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		jobs:    make(map[string]*jobs.ParseStatementJob),
		maxJobs: DefaultMaxJobs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveJob inserts or replaces the job under its id.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ParseStatementJob) error {
	if job.GetID() == "" {
		return errors.New("SaveJob: job id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.GetID()]; !exists && s.maxJobs > 0 && len(s.jobs) >= s.maxJobs {
		s.evictOldest()
	}

	stored := *job
	s.jobs[job.GetID()] = &stored
	return nil
}

// evictOldest drops the job with the earliest CreatedAt. Caller holds mu.
func (s *Store) evictOldest() {
	var oldest *jobs.ParseStatementJob
	for _, job := range s.jobs {
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest != nil {
		delete(s.jobs, oldest.GetID())
	}
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ParseStatementJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	found := *job
	return &found, nil
}

// ListJobs returns matching jobs newest first, ties broken by id, then applies
// Offset and Limit.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ParseStatementJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.ParseStatementJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.FileHash != "" && job.Message.FileHash != filter.FileHash {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		found := *job
		matched = append(matched, &found)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.GetID() < b.GetID()
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*jobs.ParseStatementJob{}, nil
	}
	if filter.Offset > 0 {
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// UpdateJobStatus sets status and, when errorMsg is non-empty, the error text.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

var _ jobs.JobStore = (*Store)(nil)
